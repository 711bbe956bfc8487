package artifact

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"codestory/internal/llm"
	"codestory/pkg/types"
)

const glossarySystemPrompt = "You explain technical terms to people who have never programmed. " +
	"For each term, give a plainExplanation in one sentence, an everyday analogy, and optionally short examples. " +
	"Respond with one JSON object: {\"terms\": [{\"term\", \"plainExplanation\", \"analogy\", \"examples\"}]}. No other text."

// commonTerms are scanned for in the corpus to seed the glossary.
var commonTerms = []string{
	"API", "Database", "Controller", "Service", "Model", "Repository",
	"Middleware", "async", "callback", "Promise", "JWT", "REST",
	"HTTP", "JSON", "SQL", "Cache", "WebSocket", "Docker", "ORM",
	"GraphQL", "OAuth", "Queue", "Router", "Session", "Token",
}

// localDictionary answers for well-known terms when generation is
// unavailable.
var localDictionary = map[string]types.TermEntry{
	"API": {
		Term:             "API",
		PlainExplanation: "A defined way for two programs to talk to each other.",
		Analogy:          "Like a restaurant waiter: it carries your order to the kitchen and brings the food back.",
	},
	"Database": {
		Term:             "Database",
		PlainExplanation: "A structured place where an application keeps its data.",
		Analogy:          "Like a giant filing room that stores and organizes every record.",
	},
	"Controller": {
		Term:             "Controller",
		PlainExplanation: "The code that receives requests and routes them to the right handler.",
		Analogy:          "Like a front desk receptionist forwarding visitors to the right department.",
	},
	"Service": {
		Term:             "Service",
		PlainExplanation: "The layer holding the business rules of an application.",
		Analogy:          "Like the operations team that actually carries out the work.",
	},
	"Cache": {
		Term:             "Cache",
		PlainExplanation: "A fast copy of data kept close so it need not be fetched again.",
		Analogy:          "Like keeping your most-used files on the desk instead of in the archive.",
	},
	"SQL": {
		Term:             "SQL",
		PlainExplanation: "The language used to ask a database questions.",
		Analogy:          "Like a request slip for the filing room: find me every customer named Smith.",
	},
	"HTTP": {
		Term:             "HTTP",
		PlainExplanation: "The protocol browsers and servers use to exchange pages and data.",
		Analogy:          "Like the shipping rules a courier follows: how to pack, send, and sign for parcels.",
	},
	"JSON": {
		Term:             "JSON",
		PlainExplanation: "A simple text format for structured data.",
		Analogy:          "Like a universal form layout any program can read and fill in.",
	},
	"async": {
		Term:             "async",
		PlainExplanation: "Work that runs in the background so the program can do other things meanwhile.",
		Analogy:          "Like ordering delivery: you do not stand at the door waiting, you get notified when it arrives.",
	},
	"Middleware": {
		Term:             "Middleware",
		PlainExplanation: "Code that inspects or adjusts every request before it reaches its handler.",
		Analogy:          "Like an airport security check every passenger passes through first.",
	},
}

func (s *Service) generateGlossary(ctx context.Context, taskID string) (*types.Artifact, error) {
	terms, err := s.collectTerms(ctx, taskID)
	if err != nil {
		return nil, err
	}

	glossary := s.glossaryFromLLM(ctx, taskID, terms)
	if glossary == nil {
		glossary = fallbackGlossary(terms)
	}

	artifact := &types.Artifact{
		Kind:     types.ArtifactGlossary,
		Glossary: glossary,
	}
	if err := artifact.Validate(); err != nil {
		s.logger.Warn("glossary failed validation, using local dictionary",
			zap.String("task", taskID), zap.Error(err))
		artifact.Glossary = fallbackGlossary(terms)
	}
	return artifact, nil
}

// collectTerms scans the corpus for occurrences of known technical terms.
// The result is sorted for deterministic prompts and cache keys.
func (s *Service) collectTerms(ctx context.Context, taskID string) ([]string, error) {
	entries, err := s.store.ListEntries(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var corpus strings.Builder
	for _, e := range entries {
		corpus.WriteString(strings.Join(e.Symbols, " "))
		corpus.WriteString(" ")
		corpus.WriteString(strings.Join(e.Imports, " "))
		corpus.WriteString(" ")
		corpus.WriteString(e.Summary)
		corpus.WriteString(" ")
		corpus.WriteString(e.Preview)
		corpus.WriteString("\n")
	}
	haystack := strings.ToLower(corpus.String())

	var found []string
	for _, term := range commonTerms {
		if strings.Contains(haystack, strings.ToLower(term)) {
			found = append(found, term)
		}
	}
	if len(found) == 0 {
		// every codebase gets the basics
		found = []string{"API", "Database", "Service"}
	}
	sort.Strings(found)
	return found, nil
}

func (s *Service) glossaryFromLLM(ctx context.Context, taskID string, terms []string) *types.Glossary {
	text, err := s.generator.Generate(ctx, llm.GenerateRequest{
		System:      glossarySystemPrompt,
		Prompt:      "Explain these terms found in the project: " + strings.Join(terms, ", "),
		MaxTokens:   2500,
		Temperature: 0.5,
	})
	if err != nil {
		s.logger.Warn("glossary generation failed, using local dictionary",
			zap.String("task", taskID), zap.Error(err))
		return nil
	}

	var glossary types.Glossary
	if err := llm.ExtractJSON(text, &glossary); err != nil {
		s.logger.Warn("unparseable glossary response, using local dictionary",
			zap.String("task", taskID), zap.Error(err))
		return nil
	}

	valid := glossary.Terms[:0]
	for _, t := range glossary.Terms {
		if strings.TrimSpace(t.Term) == "" || strings.TrimSpace(t.PlainExplanation) == "" {
			continue
		}
		valid = append(valid, t)
	}
	glossary.Terms = valid
	if len(glossary.Terms) == 0 {
		return nil
	}
	return &glossary
}

// fallbackGlossary serves the local dictionary entries for the found terms,
// with a generic entry for terms the dictionary does not know.
func fallbackGlossary(terms []string) *types.Glossary {
	glossary := &types.Glossary{}
	for _, term := range terms {
		if entry, ok := localDictionary[term]; ok {
			glossary.Terms = append(glossary.Terms, entry)
		} else {
			glossary.Terms = append(glossary.Terms, types.TermEntry{
				Term:             term,
				PlainExplanation: "A technical term used in this project (" + term + ").",
			})
		}
	}
	return glossary
}
