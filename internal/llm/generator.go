// Package llm provides the text-generation collaborator used by the
// summarize stage and the artifact generators. Providers speak the
// OpenAI-compatible chat completions protocol; responses that must carry
// structured data go through ExtractJSON, which tolerates the prose and
// code fences models wrap payloads in.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Generator produces text from a prompt pair.
type Generator interface {
	// Generate returns the model's completion for the given prompts.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Model reports the configured model identifier.
	Model() string

	// Close releases provider resources.
	Close() error
}

// GenerateRequest carries one completion call.
type GenerateRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Provider failure classes. Callers decide retry policy.
var (
	ErrProviderFailed = errors.New("generation provider failed")
	ErrEmptyResponse  = errors.New("provider returned empty response")
	ErrNoJSONPayload  = errors.New("no JSON payload in response")
	ErrNotConfigured  = errors.New("no generation provider configured")
)

// disabledProvider stands in when no API key is configured. Every call
// fails fast, so summaries and artifacts degrade to their deterministic
// fallbacks instead of crashing the pipeline.
type disabledProvider struct{}

// NewDisabledProvider returns a Generator that always fails.
func NewDisabledProvider() Generator { return disabledProvider{} }

func (disabledProvider) Generate(context.Context, GenerateRequest) (string, error) {
	return "", ErrNotConfigured
}
func (disabledProvider) Model() string { return "disabled" }
func (disabledProvider) Close() error  { return nil }

// ExtractJSON locates and unmarshals the JSON payload in a model response
// into v. It tries, in order: the raw text, the contents of a fenced code
// block, and the widest brace- or bracket-delimited window.
func ExtractJSON(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrNoJSONPayload
	}

	candidates := []string{trimmed}
	if fenced := stripFence(trimmed); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if window := jsonWindow(trimmed, '{', '}'); window != "" {
		candidates = append(candidates, window)
	}
	if window := jsonWindow(trimmed, '[', ']'); window != "" {
		candidates = append(candidates, window)
	}

	var lastErr error
	for _, c := range candidates {
		if err := json.Unmarshal([]byte(c), v); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("%w: %v", ErrNoJSONPayload, lastErr)
}

// stripFence returns the body of the first fenced code block, or "".
func stripFence(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	// drop an optional language tag on the fence line
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}[]") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// jsonWindow returns the widest open..close slice of text, or "".
func jsonWindow(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
