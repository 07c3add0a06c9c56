package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/silohq/silosearch/internal/registry"
	"github.com/silohq/silosearch/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeNamespaceNotFound = -32001 // Namespace does not exist
	ErrorCodeNamespaceConflict = -32002 // Namespace already exists
	ErrorCodeEmptyQuery        = -32003 // Query parameter is empty
)

func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req, mcpErr := parseQueryRequest(args)
	if mcpErr != nil {
		return nil, mcpErr
	}
	namespace := getStringDefault(args, "namespace", types.DefaultNamespace)

	results, err := s.registry.Query(ctx, namespace, req)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"namespace": namespace,
		"count":     len(results),
		"results":   results,
	})), nil
}

func (s *Server) handleQueryMulti(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req, mcpErr := parseQueryRequest(args)
	if mcpErr != nil {
		return nil, mcpErr
	}

	namespaces := getStringSlice(args, "namespaces")
	if len(namespaces) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "namespaces parameter is required", map[string]interface{}{
			"param":  "namespaces",
			"reason": "missing or empty",
		})
	}

	resp, err := s.registry.QueryMulti(ctx, namespaces, req)
	if err != nil {
		return nil, translateError(err)
	}

	out := map[string]interface{}{
		"results": resp.Results,
	}
	if len(resp.Errors) > 0 {
		out["errors"] = resp.Errors
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleQueryBest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	req, mcpErr := parseQueryRequest(args)
	if mcpErr != nil {
		return nil, mcpErr
	}
	namespaces := getStringSlice(args, "namespaces")

	results, err := s.registry.QueryBest(ctx, namespaces, req)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count":   len(results),
		"results": results,
	})), nil
}

func (s *Server) handleAddChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	namespace, ok := args["namespace"].(string)
	if !ok || namespace == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "namespace parameter is required", map[string]interface{}{
			"param":  "namespace",
			"reason": "missing or empty",
		})
	}

	rawChunks, ok := args["chunks"].([]interface{})
	if !ok || len(rawChunks) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "chunks parameter is required", map[string]interface{}{
			"param":  "chunks",
			"reason": "missing or empty",
		})
	}

	chunks, err := decodeChunks(rawChunks)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunk record", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := s.registry.Ingest(ctx, namespace, chunks); err != nil {
		return nil, translateError(err)
	}

	stats, err := s.registry.Stats(ctx, namespace)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"namespace":      namespace,
		"chunks_added":   len(chunks),
		"chunk_count":    stats.ChunkCount,
		"document_count": stats.DocumentCount,
	})), nil
}

func (s *Server) handleCreateNamespace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["namespace"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "namespace parameter is required", map[string]interface{}{
			"param":  "namespace",
			"reason": "missing or empty",
		})
	}

	ns := &types.Namespace{
		ID:          id,
		Description: getStringDefault(args, "description", ""),
		Department:  getStringDefault(args, "department", ""),
		Contact:     getStringDefault(args, "contact", ""),
		Tags:        getStringSlice(args, "tags"),
	}
	if err := s.registry.Create(ctx, ns); err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"created":   true,
		"namespace": ns,
	})), nil
}

func (s *Server) handleDeleteNamespace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	namespace, ok := args["namespace"].(string)
	if !ok || namespace == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "namespace parameter is required", map[string]interface{}{
			"param":  "namespace",
			"reason": "missing or empty",
		})
	}
	force := getBoolDefault(args, "force", false)

	if err := s.registry.Delete(ctx, namespace, force); err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted":   true,
		"namespace": namespace,
	})), nil
}

func (s *Server) handleMigrateNamespace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	source, target, mcpErr := sourceTarget(args)
	if mcpErr != nil {
		return nil, mcpErr
	}
	keepSource := getBoolDefault(args, "keep_source", false)

	result, err := s.registry.Migrate(ctx, source, target, keepSource)
	if err != nil {
		// A partial migration still reports how far it got
		data := map[string]interface{}{"error": err.Error()}
		if result != nil {
			data["chunks_copied"] = result.ChunksCopied
		}
		return nil, newMCPError(ErrorCodeInternalError, "migration failed", data)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"migrated": true,
		"result":   result,
	})), nil
}

func (s *Server) handleCloneNamespace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	source, target, mcpErr := sourceTarget(args)
	if mcpErr != nil {
		return nil, mcpErr
	}

	result, err := s.registry.Clone(ctx, source, target)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cloned": true,
		"result": result,
	})), nil
}

func (s *Server) handleListNamespaces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	department := getStringDefault(args, "department", "")

	namespaces, err := s.registry.List(ctx, department)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"count":      len(namespaces),
		"namespaces": namespaces,
	})), nil
}

func (s *Server) handleNamespaceStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	namespace, ok := args["namespace"].(string)
	if !ok || namespace == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "namespace parameter is required", map[string]interface{}{
			"param":  "namespace",
			"reason": "missing or empty",
		})
	}
	topN := getIntDefault(args, "top_n", 10)

	stats, err := s.registry.Stats(ctx, namespace)
	if err != nil {
		return nil, translateError(err)
	}
	analytics, err := s.registry.Analytics(ctx, namespace, topN)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"stats":     stats,
		"analytics": analytics,
	})), nil
}

func (s *Server) handleBackupNamespace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	namespace, ok := args["namespace"].(string)
	if !ok || namespace == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "namespace parameter is required", map[string]interface{}{
			"param":  "namespace",
			"reason": "missing or empty",
		})
	}
	dir := getStringDefault(args, "backup_dir", "")

	path, err := s.registry.Backup(ctx, namespace, dir)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"backed_up":   true,
		"namespace":   namespace,
		"backup_file": path,
	})), nil
}

func (s *Server) handleRestoreNamespace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["backup_file"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "backup_file parameter is required", map[string]interface{}{
			"param":  "backup_file",
			"reason": "missing or empty",
		})
	}
	namespace := getStringDefault(args, "namespace", "")

	result, err := s.registry.RestoreBackup(ctx, path, namespace)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"restored": true,
		"result":   result,
	})), nil
}

func (s *Server) handleNamespaceOverlap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	source, target, mcpErr := sourceTarget(args)
	if mcpErr != nil {
		return nil, mcpErr
	}

	report, err := s.registry.Overlap(ctx, source, target)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"overlap": report,
	})), nil
}

func (s *Server) handleSystemOverview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	overview, err := s.registry.Overview(ctx)
	if err != nil {
		return nil, translateError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"overview": overview,
	})), nil
}

func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.registry.CacheStats()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cache": stats,
	})), nil
}

// Helper functions

// parseQueryRequest extracts the shared query parameters.
func parseQueryRequest(args map[string]interface{}) (registry.QueryRequest, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return registry.QueryRequest{}, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK := getIntDefault(args, "top_k", registry.DefaultTopK)
	if topK < 1 || topK > 100 {
		return registry.QueryRequest{}, newMCPError(ErrorCodeInvalidParams, "top_k must be between 1 and 100", map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	threshold := getFloatDefault(args, "score_threshold", 0)
	if threshold < 0 || threshold > 1 {
		return registry.QueryRequest{}, newMCPError(ErrorCodeInvalidParams, "score_threshold must be between 0.0 and 1.0", map[string]interface{}{
			"param": "score_threshold",
			"value": threshold,
		})
	}

	filters, _ := args["filters"].(map[string]interface{})

	return registry.QueryRequest{
		Text:      query,
		TopK:      topK,
		Threshold: threshold,
		Filters:   filters,
		UseCache:  getBoolDefault(args, "use_cache", true),
	}, nil
}

// decodeChunks converts tool arguments into chunk records via JSON tags.
func decodeChunks(raw []interface{}) ([]*types.Chunk, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var chunks []*types.Chunk
	if err := json.Unmarshal(encoded, &chunks); err != nil {
		return nil, err
	}
	for i, c := range chunks {
		if c == nil || c.Text == "" {
			return nil, fmt.Errorf("chunk %d: text is required", i)
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
	}
	return chunks, nil
}

func sourceTarget(args map[string]interface{}) (string, string, error) {
	source, ok := args["source"].(string)
	if !ok || source == "" {
		return "", "", newMCPError(ErrorCodeInvalidParams, "source parameter is required", map[string]interface{}{
			"param":  "source",
			"reason": "missing or empty",
		})
	}
	target, ok := args["target"].(string)
	if !ok || target == "" {
		return "", "", newMCPError(ErrorCodeInvalidParams, "target parameter is required", map[string]interface{}{
			"param":  "target",
			"reason": "missing or empty",
		})
	}
	return source, target, nil
}

// translateError maps domain sentinels to MCP error codes.
func translateError(err error) error {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return newMCPError(ErrorCodeNamespaceNotFound, "not found", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, types.ErrConflict):
		return newMCPError(ErrorCodeNamespaceConflict, "already exists", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, types.ErrInvalidArgument):
		return newMCPError(ErrorCodeInvalidParams, "invalid parameters", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, "internal error", map[string]interface{}{
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

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
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

// getStringSlice extracts a string-array parameter; scalars become a
// one-element slice.
func getStringSlice(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}
