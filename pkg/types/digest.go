package types

import (
	"errors"
	"strings"
)

// Digest is the compact structural summary of one source file. It is derived
// once per pipeline run and never mutated afterwards; a re-submission
// supersedes the whole digest rather than patching it.
type Digest struct {
	Path      string   `json:"path"`
	Language  string   `json:"language"`
	Symbols   []string `json:"symbols,omitempty"`
	Imports   []string `json:"imports,omitempty"`
	Comment   string   `json:"comment,omitempty"` // leading comment or docstring
	Preview   string   `json:"preview,omitempty"` // redacted content excerpt
	Summary   string   `json:"summary,omitempty"` // generated plain-language summary
	LineCount int      `json:"lineCount"`
	ByteLen   int      `json:"byteLen"`
	Truncated bool     `json:"truncated"` // preview built from head+tail windows only
}

// Validate checks digest field integrity
func (d *Digest) Validate() error {
	if d.Path == "" {
		return errors.New("digest path is required")
	}
	if d.ByteLen < 0 || d.LineCount < 0 {
		return errors.New("digest sizes must be non-negative")
	}
	return nil
}

// EmbeddingText assembles the text that represents this digest in the
// semantic index. Symbols and imports come first so short queries about
// names rank well even when the preview is long.
func (d *Digest) EmbeddingText() string {
	var b strings.Builder
	b.WriteString("file: ")
	b.WriteString(d.Path)
	b.WriteString("\n")
	if len(d.Symbols) > 0 {
		b.WriteString("symbols: ")
		b.WriteString(strings.Join(d.Symbols, ", "))
		b.WriteString("\n")
	}
	if len(d.Imports) > 0 {
		b.WriteString("imports: ")
		b.WriteString(strings.Join(d.Imports, ", "))
		b.WriteString("\n")
	}
	if d.Comment != "" {
		b.WriteString(d.Comment)
		b.WriteString("\n")
	}
	if d.Summary != "" {
		b.WriteString(d.Summary)
		b.WriteString("\n")
	}
	if d.Preview != "" {
		b.WriteString(d.Preview)
	}
	return b.String()
}
