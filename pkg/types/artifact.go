package types

import (
	"errors"
	"fmt"
)

// ArtifactKind identifies one of the closed set of generated artifacts
type ArtifactKind string

const (
	ArtifactArchitectureGraph ArtifactKind = "architecture_graph"
	ArtifactChatScript        ArtifactKind = "chat_script"
	ArtifactGlossary          ArtifactKind = "glossary"
)

// ParseArtifactKind validates a caller-supplied kind string.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch ArtifactKind(s) {
	case ArtifactArchitectureGraph, ArtifactChatScript, ArtifactGlossary:
		return ArtifactKind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownArtifactKind, s)
	}
}

// Component is one box inside an architecture layer
type Component struct {
	Name             string   `json:"name"`
	Role             string   `json:"role"`
	Description      string   `json:"description"`
	PlainExplanation string   `json:"plainExplanation"`
	Files            []string `json:"files,omitempty"`
}

// Layer is one horizontal band of the architecture visualization
type Layer struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	PlainExplanation string      `json:"plainExplanation"`
	Components       []Component `json:"components"`
}

// ArchitectureGraph is the layered architecture artifact
type ArchitectureGraph struct {
	Layers        []Layer `json:"layers"`
	DiagramSource string  `json:"diagramSource,omitempty"`
}

// Character is one persona in a chat script
type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Personality string `json:"personality,omitempty"`
}

// Dialogue is one message of a chat script; From and To reference Character IDs
type Dialogue struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
	CodeRef string `json:"codeRef,omitempty"` // file:line the line dramatizes
}

// ChatScript dramatizes inter-module calls for one scenario
type ChatScript struct {
	Scenario   string      `json:"scenario"`
	Characters []Character `json:"characters"`
	Dialogues  []Dialogue  `json:"dialogues"`
}

// TermEntry is one plain-language term explanation
type TermEntry struct {
	Term             string   `json:"term"`
	PlainExplanation string   `json:"plainExplanation"`
	Analogy          string   `json:"analogy,omitempty"`
	Examples         []string `json:"examples,omitempty"`
}

// Glossary is the term-dictionary artifact
type Glossary struct {
	Terms []TermEntry `json:"terms"`
}

// Artifact is the tagged union of the three generated artifact payloads.
// Exactly one payload field is set, matching Kind.
type Artifact struct {
	Kind              ArtifactKind       `json:"kind"`
	ArchitectureGraph *ArchitectureGraph `json:"architectureGraph,omitempty"`
	ChatScript        *ChatScript        `json:"chatScript,omitempty"`
	Glossary          *Glossary          `json:"glossary,omitempty"`
}

// Validate checks the artifact payload matches its kind and satisfies the
// per-kind schema.
func (a *Artifact) Validate() error {
	switch a.Kind {
	case ArtifactArchitectureGraph:
		if a.ArchitectureGraph == nil {
			return errors.New("architecture graph payload missing")
		}
		if len(a.ArchitectureGraph.Layers) == 0 {
			return errors.New("architecture graph requires at least one layer")
		}
		for _, layer := range a.ArchitectureGraph.Layers {
			if layer.Name == "" {
				return errors.New("layer name is required")
			}
		}
	case ArtifactChatScript:
		if a.ChatScript == nil {
			return errors.New("chat script payload missing")
		}
		if a.ChatScript.Scenario == "" {
			return errors.New("chat script scenario is required")
		}
		ids := make(map[string]bool, len(a.ChatScript.Characters))
		for _, c := range a.ChatScript.Characters {
			if c.ID == "" || c.Name == "" {
				return errors.New("character id and name are required")
			}
			ids[c.ID] = true
		}
		for _, d := range a.ChatScript.Dialogues {
			if d.Content == "" {
				return errors.New("dialogue content is required")
			}
			if !ids[d.From] || !ids[d.To] {
				return errors.New("dialogue references unknown character")
			}
		}
	case ArtifactGlossary:
		if a.Glossary == nil {
			return errors.New("glossary payload missing")
		}
		if len(a.Glossary.Terms) == 0 {
			return errors.New("glossary requires at least one term")
		}
		for _, t := range a.Glossary.Terms {
			if t.Term == "" || t.PlainExplanation == "" {
				return errors.New("glossary term and explanation are required")
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownArtifactKind, a.Kind)
	}
	return nil
}
