package artifact

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"codestory/internal/llm"
	"codestory/pkg/types"
)

// DefaultScenario is used when the caller does not name one.
const DefaultScenario = "a user request travels through the system"

const scriptSystemPrompt = "You are a screenwriter turning code module interactions into a lively group chat. " +
	"Rules: create one character per real module (controller, service, database, and so on), give each a " +
	"distinct voice, keep 6 to 12 messages, make every message reflect the real call flow, attach a codeRef " +
	"(file:line) where you can, and use everyday analogies instead of jargon. " +
	"Respond with one JSON object: {\"scenario\", \"characters\": [{\"id\", \"name\", \"role\", \"personality\"}], " +
	"\"dialogues\": [{\"from\", \"to\", \"content\", \"codeRef\"}]}. from/to are character ids. No other text."

func (s *Service) generateChatScript(ctx context.Context, taskID, scenario string) (*types.Artifact, error) {
	if strings.TrimSpace(scenario) == "" {
		scenario = DefaultScenario
	}

	codeContext, err := s.retrievedContext(ctx, taskID, scenario)
	if err != nil {
		return nil, err
	}

	script := s.scriptFromLLM(ctx, taskID, scenario, codeContext)
	if script == nil {
		script = fallbackScript(scenario)
	}

	artifact := &types.Artifact{
		Kind:       types.ArtifactChatScript,
		ChatScript: script,
	}
	if err := artifact.Validate(); err != nil {
		s.logger.Warn("chat script failed validation, using template",
			zap.String("task", taskID), zap.Error(err))
		artifact.ChatScript = fallbackScript(scenario)
	}
	return artifact, nil
}

func (s *Service) scriptFromLLM(ctx context.Context, taskID, scenario, codeContext string) *types.ChatScript {
	prompt := fmt.Sprintf("Scenario: %s\n\nRelevant project files:\n%s\nWrite the group chat script for this scenario.",
		scenario, codeContext)

	text, err := s.generator.Generate(ctx, llm.GenerateRequest{
		System:      scriptSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   3000,
		Temperature: 0.8,
	})
	if err != nil {
		s.logger.Warn("script generation failed, using template",
			zap.String("task", taskID), zap.Error(err))
		return nil
	}

	var script types.ChatScript
	if err := llm.ExtractJSON(text, &script); err != nil {
		s.logger.Warn("unparseable script response, using template",
			zap.String("task", taskID), zap.Error(err))
		return nil
	}

	repairScript(&script, scenario)
	if len(script.Characters) == 0 || len(script.Dialogues) == 0 {
		return nil
	}
	return &script
}

// repairScript fixes what it can and drops what it cannot: characters get
// synthetic ids, dialogues without content or referencing unknown
// characters are removed.
func repairScript(script *types.ChatScript, scenario string) {
	if script.Scenario == "" {
		script.Scenario = scenario
	}

	ids := make(map[string]bool, len(script.Characters))
	characters := script.Characters[:0]
	for i, c := range script.Characters {
		if c.ID == "" {
			c.ID = fmt.Sprintf("char_%d", i)
		}
		if c.Name == "" {
			c.Name = c.Role
		}
		if c.Name == "" {
			continue
		}
		ids[c.ID] = true
		characters = append(characters, c)
	}
	script.Characters = characters

	dialogues := script.Dialogues[:0]
	for _, d := range script.Dialogues {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		if !ids[d.From] || !ids[d.To] {
			continue
		}
		dialogues = append(dialogues, d)
	}
	script.Dialogues = dialogues
}

// fallbackScript is the four-character template used when generation is
// unavailable.
func fallbackScript(scenario string) *types.ChatScript {
	return &types.ChatScript{
		Scenario: scenario,
		Characters: []types.Character{
			{ID: "user", Name: "Sam the User", Role: "User", Personality: "curious, impatient, full of questions"},
			{ID: "fe", Name: "Fiona the Frontend", Role: "Frontend", Personality: "upbeat, loves showing things off"},
			{ID: "be", Name: "Boris the Backend", Role: "Backend", Personality: "calm, methodical"},
			{ID: "db", Name: "Dana the Database", Role: "Database", Personality: "great memory, speaks slowly"},
		},
		Dialogues: []types.Dialogue{
			{From: "user", To: "fe", Content: fmt.Sprintf("Fiona, I want to %s!", scenario)},
			{From: "fe", To: "be", Content: "Boris, request coming your way, can you handle it?"},
			{From: "be", To: "db", Content: "Dana, pull up the records for me, please."},
			{From: "db", To: "be", Content: "Found them. Here you go."},
			{From: "be", To: "fe", Content: "All done, here is the result."},
			{From: "fe", To: "user", Content: fmt.Sprintf("Done! %s worked.", scenario)},
		},
	}
}
