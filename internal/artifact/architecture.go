package artifact

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"codestory/internal/llm"
	"codestory/internal/storage"
	"codestory/pkg/types"
)

const architectureSystemPrompt = "You are an architect explaining a codebase to a non-programmer. " +
	"Group the project's files into horizontal layers (presentation, business logic, data, and so on). " +
	"Every layer and component needs a plainExplanation written as an everyday analogy with no jargon. " +
	"Respond with a single JSON object: {\"layers\": [{\"id\", \"name\", \"description\", \"plainExplanation\", " +
	"\"components\": [{\"name\", \"role\", \"description\", \"plainExplanation\", \"files\"}]}]}. No other text."

func (s *Service) generateArchitecture(ctx context.Context, taskID string) (*types.Artifact, error) {
	entries, err := s.store.ListEntries(ctx, taskID)
	if err != nil {
		return nil, err
	}

	graph := s.architectureFromLLM(ctx, taskID, entriesContext(entries))
	if graph == nil {
		graph = folderArchitecture(entries)
	}
	graph.DiagramSource = mermaidFromLayers(graph.Layers)

	artifact := &types.Artifact{
		Kind:              types.ArtifactArchitectureGraph,
		ArchitectureGraph: graph,
	}
	if err := artifact.Validate(); err != nil {
		// repaired output should always validate; fall back hard if not
		s.logger.Warn("architecture artifact failed validation, using folder graph",
			zap.String("task", taskID), zap.Error(err))
		graph = folderArchitecture(entries)
		graph.DiagramSource = mermaidFromLayers(graph.Layers)
		artifact.ArchitectureGraph = graph
	}
	return artifact, nil
}

func (s *Service) architectureFromLLM(ctx context.Context, taskID, codeContext string) *types.ArchitectureGraph {
	text, err := s.generator.Generate(ctx, llm.GenerateRequest{
		System:      architectureSystemPrompt,
		Prompt:      "Project files:\n" + codeContext + "\nGroup these into architecture layers.",
		MaxTokens:   3000,
		Temperature: 0.5,
	})
	if err != nil {
		s.logger.Warn("architecture generation failed, using default layers",
			zap.String("task", taskID), zap.Error(err))
		return nil
	}

	var graph types.ArchitectureGraph
	if err := llm.ExtractJSON(text, &graph); err != nil {
		s.logger.Warn("unparseable architecture response, using default layers",
			zap.String("task", taskID), zap.Error(err))
		return nil
	}

	repairArchitecture(&graph)
	if len(graph.Layers) == 0 {
		return nil
	}
	return &graph
}

// repairArchitecture drops malformed layers and fills missing identifiers,
// keeping whatever the model got right.
func repairArchitecture(graph *types.ArchitectureGraph) {
	valid := graph.Layers[:0]
	for i, layer := range graph.Layers {
		if strings.TrimSpace(layer.Name) == "" {
			continue
		}
		if layer.ID == "" {
			layer.ID = fmt.Sprintf("layer-%d", i)
		}
		components := layer.Components[:0]
		for _, comp := range layer.Components {
			if strings.TrimSpace(comp.Name) == "" {
				continue
			}
			components = append(components, comp)
		}
		layer.Components = components
		valid = append(valid, layer)
	}
	graph.Layers = valid
}

// folderArchitecture is the deterministic fallback used when generation is
// unavailable: the task's indexed files grouped by top-level folder, one
// component per folder carrying its file list.
func folderArchitecture(entries []*storage.Entry) *types.ArchitectureGraph {
	groups := make(map[string][]string)
	var order []string
	for _, e := range entries {
		folder := "root"
		if i := strings.Index(e.Path, "/"); i > 0 {
			folder = e.Path[:i]
		}
		if _, seen := groups[folder]; !seen {
			order = append(order, folder)
		}
		groups[folder] = append(groups[folder], e.Path)
	}

	layer := types.Layer{
		ID:               "layer-0",
		Name:             "Project structure",
		Description:      "Files grouped by top-level folder",
		PlainExplanation: "Like cabinets in an office: each drawer holds the papers that belong together.",
	}
	for _, folder := range order {
		files := groups[folder]
		layer.Components = append(layer.Components, types.Component{
			Name:             folder,
			Role:             "Folder",
			Description:      fmt.Sprintf("%d files under %s", len(files), folder),
			PlainExplanation: fmt.Sprintf("A drawer labelled %q holding the files that live there.", folder),
			Files:            files,
		})
	}
	return &types.ArchitectureGraph{Layers: []types.Layer{layer}}
}

// mermaidFromLayers renders a deterministic flowchart for the layer graph.
// Adjacent layers connect top to bottom; component labels carry up to four
// of the files they cover.
func mermaidFromLayers(layers []types.Layer) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	for i, layer := range layers {
		fmt.Fprintf(&b, "    subgraph L%d[%q]\n", i, layer.Name)
		for j, comp := range layer.Components {
			fmt.Fprintf(&b, "        L%dC%d[%q]\n", i, j, componentLabel(comp))
		}
		b.WriteString("    end\n")
	}
	for i := 0; i+1 < len(layers); i++ {
		fmt.Fprintf(&b, "    L%d --> L%d\n", i, i+1)
	}
	return b.String()
}

func componentLabel(comp types.Component) string {
	if len(comp.Files) == 0 {
		return comp.Name
	}
	shown := comp.Files
	if len(shown) > 4 {
		shown = shown[:4]
	}
	return comp.Name + ": " + strings.Join(shown, ", ")
}
