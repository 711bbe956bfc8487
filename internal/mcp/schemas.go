package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// taskStatusTool returns the tool definition for task_status
func taskStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "task_status",
		Description: "Report the lifecycle state, progress and file tree of an analysis task",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier returned when the archive was uploaded",
				},
				"include_tree": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include the extracted file tree when available",
					"default":     false,
				},
			},
			Required: []string{"task_id"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Semantic search over a ready task's indexed files using natural language queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier of a task whose analysis has completed",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-32)",
					"default":     8,
					"minimum":     1,
					"maximum":     32,
				},
			},
			Required: []string{"task_id", "query"},
		},
	}
}

// getArtifactTool returns the tool definition for get_artifact
func getArtifactTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_artifact",
		Description: "Fetch an already-generated artifact (architecture_graph, chat_script or glossary). Generation itself happens over the HTTP API.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier of a task whose analysis has completed",
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Artifact kind to fetch",
					"enum":        []string{"architecture_graph", "chat_script", "glossary"},
				},
				"scenario": map[string]interface{}{
					"type":        "string",
					"description": "Scenario the chat script was generated for; ignored for other kinds",
				},
			},
			Required: []string{"task_id", "kind"},
		},
	}
}

// listHistoryTool returns the tool definition for list_history
func listHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_history",
		Description: "List recent analysis tasks, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of tasks to return",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}
