package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"codestory/internal/artifact"
	"codestory/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeTaskNotFound    = -32001 // No task with the given identifier
	ErrorCodeTaskNotReady    = -32002 // Analysis still running, index not queryable
	ErrorCodeArtifactMissing = -32003 // Artifact has not been generated yet
	ErrorCodeEmptyQuery      = -32004 // Query parameter is empty
)

// handleTaskStatus handles the task_status tool invocation
func (s *Server) handleTaskStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "task_id parameter is required", map[string]interface{}{
			"param":  "task_id",
			"reason": "missing or empty",
		})
	}

	task, err := s.orch.Status(taskID)
	if err != nil {
		return nil, taskError(taskID, err)
	}

	response := map[string]interface{}{
		"task_id":   task.ID,
		"file_name": task.FileName,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"message":   task.Message,
	}
	if task.Error != nil {
		response["error"] = map[string]interface{}{
			"stage":  string(task.Error.Stage),
			"reason": task.Error.Reason,
		}
	}

	if getBoolDefault(args, "include_tree", false) {
		if structure, err := s.orch.Structure(taskID); err == nil {
			response["tree"] = structure.Tree
			response["file_count"] = structure.Tree.FileCount()
			response["diagram_source"] = structure.DiagramSource
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "task_id parameter is required", map[string]interface{}{
			"param":  "task_id",
			"reason": "missing or empty",
		})
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 8)
	if limit < 1 || limit > 32 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 32", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	results, err := s.orch.Search(ctx, taskID, query, limit)
	if err != nil {
		return nil, taskError(taskID, err)
	}

	matches := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		matches = append(matches, map[string]interface{}{
			"path":       r.Path,
			"language":   r.Language,
			"summary":    r.Summary,
			"similarity": fmt.Sprintf("%.4f", r.Similarity),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"task_id": taskID,
		"query":   query,
		"matches": matches,
	})), nil
}

// handleGetArtifact handles the get_artifact tool invocation. The tool only
// serves artifacts already generated through the HTTP API.
func (s *Server) handleGetArtifact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "task_id parameter is required", map[string]interface{}{
			"param":  "task_id",
			"reason": "missing or empty",
		})
	}

	kind := types.ArtifactKind(getStringDefault(args, "kind", ""))
	switch kind {
	case types.ArtifactArchitectureGraph, types.ArtifactChatScript, types.ArtifactGlossary:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid artifact kind", map[string]interface{}{
			"param":   "kind",
			"value":   string(kind),
			"allowed": []string{"architecture_graph", "chat_script", "glossary"},
		})
	}

	params := artifact.Params{Scenario: getStringDefault(args, "scenario", "")}
	cached, found, err := s.orch.CachedArtifact(taskID, kind, params)
	if err != nil {
		return nil, taskError(taskID, err)
	}
	if !found {
		return nil, newMCPError(ErrorCodeArtifactMissing, "artifact not generated yet", map[string]interface{}{
			"task_id": taskID,
			"kind":    string(kind),
			"hint":    "request it through the HTTP artifact endpoint first",
		})
	}

	payload, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "artifact encoding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// handleListHistory handles the list_history tool invocation
func (s *Server) handleListHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 20
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		limit = getIntDefault(args, "limit", 20)
	}
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	tasks := s.orch.History(limit)
	entries := make([]map[string]interface{}, 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, map[string]interface{}{
			"task_id":    t.ID,
			"file_name":  t.FileName,
			"status":     string(t.Status),
			"progress":   t.Progress,
			"created_at": t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count": len(entries),
		"tasks": entries,
	})), nil
}

// Helper functions

// taskError maps domain errors to MCP error codes
func taskError(taskID string, err error) error {
	switch {
	case errors.Is(err, types.ErrUnknownTask):
		return newMCPError(ErrorCodeTaskNotFound, "task not found", map[string]interface{}{
			"task_id": taskID,
		})
	case errors.Is(err, types.ErrNotReady), errors.Is(err, types.ErrIndexNotReady):
		return newMCPError(ErrorCodeTaskNotReady, "analysis has not completed", map[string]interface{}{
			"task_id": taskID,
		})
	default:
		return newMCPError(ErrorCodeInternalError, "request failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
