// Package mcp exposes the retrieval engine as an MCP tool server over
// stdio. Handlers validate arguments, delegate to the registry, and render
// JSON text results.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/silohq/silosearch/internal/cache"
	"github.com/silohq/silosearch/internal/config"
	"github.com/silohq/silosearch/internal/embedder"
	"github.com/silohq/silosearch/internal/fusion"
	"github.com/silohq/silosearch/internal/registry"
	"github.com/silohq/silosearch/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "silosearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	registry *registry.Registry
}

// NewServer wires storage, embedder, cache, and registry from configuration
// and registers the tool surface.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var cm *cache.Manager
	if cfg.CacheEnabled {
		cm = cache.NewManager(cfg.CacheTTL, cfg.CacheMaxEntries, cfg.BloomCapacity, cfg.BloomErrorRate)
	}

	reg, err := registry.New(ctx, store, emb, cm, registry.Config{
		DefaultNamespace: cfg.DefaultNamespace,
		Fusion: fusion.Config{
			VectorWeight:  cfg.VectorWeight,
			KeywordWeight: cfg.KeywordWeight,
			RerankTopK:    cfg.RerankTopK,
		},
		SearchTimeout: cfg.SearchTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:      mcpServer,
		registry: reg,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.registry.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(queryTool(), s.handleQuery)
	s.mcp.AddTool(queryMultiTool(), s.handleQueryMulti)
	s.mcp.AddTool(queryBestTool(), s.handleQueryBest)
	s.mcp.AddTool(addChunksTool(), s.handleAddChunks)
	s.mcp.AddTool(createNamespaceTool(), s.handleCreateNamespace)
	s.mcp.AddTool(deleteNamespaceTool(), s.handleDeleteNamespace)
	s.mcp.AddTool(migrateNamespaceTool(), s.handleMigrateNamespace)
	s.mcp.AddTool(cloneNamespaceTool(), s.handleCloneNamespace)
	s.mcp.AddTool(listNamespacesTool(), s.handleListNamespaces)
	s.mcp.AddTool(namespaceStatsTool(), s.handleNamespaceStats)
	s.mcp.AddTool(backupNamespaceTool(), s.handleBackupNamespace)
	s.mcp.AddTool(restoreNamespaceTool(), s.handleRestoreNamespace)
	s.mcp.AddTool(namespaceOverlapTool(), s.handleNamespaceOverlap)
	s.mcp.AddTool(systemOverviewTool(), s.handleSystemOverview)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
}
