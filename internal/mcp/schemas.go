package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// filtersSchema is shared by every query tool.
func filtersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Optional metadata filters; multiple values within a field are OR'd, fields are AND'd",
		"properties": map[string]interface{}{
			"author": map[string]interface{}{
				"type":        []string{"string", "array"},
				"description": "Author name(s)",
			},
			"department": map[string]interface{}{
				"type":        []string{"string", "array"},
				"description": "Owning department(s)",
			},
			"tags": map[string]interface{}{
				"type":        []string{"string", "array"},
				"description": "Tag(s); a chunk matches if it carries any of them",
			},
			"document_type": map[string]interface{}{
				"type":        []string{"string", "array"},
				"description": "Document type(s), e.g. guide, runbook, report",
			},
			"security_level": map[string]interface{}{
				"type":        []string{"string", "array"},
				"description": "Security level(s), e.g. public, internal",
			},
			"created_after": map[string]interface{}{
				"type":        "string",
				"description": "Inclusive lower bound on the chunk's created date (ISO-8601 string)",
			},
		},
	}
}

func queryParams(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "Search query text",
		},
		"top_k": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum number of results",
			"default":     5,
			"minimum":     1,
			"maximum":     100,
		},
		"score_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Drop results whose fused score is below this (0.0-1.0)",
			"default":     0.0,
			"minimum":     0.0,
			"maximum":     1.0,
		},
		"filters": filtersSchema(),
		"use_cache": map[string]interface{}{
			"type":        "boolean",
			"description": "Serve from the query cache when possible",
			"default":     true,
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func queryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query",
		Description: "Hybrid search (vector + keyword) within a single namespace",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: queryParams(map[string]interface{}{
				"namespace": map[string]interface{}{
					"type":        "string",
					"description": "Namespace to search (defaults to the fallback namespace)",
				},
			}),
			Required: []string{"query"},
		},
	}
}

func queryMultiTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_multi",
		Description: "Run the same search across several namespaces concurrently; results stay grouped per namespace",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: queryParams(map[string]interface{}{
				"namespaces": map[string]interface{}{
					"type":        "array",
					"description": "Namespaces to search",
					"items":       map[string]interface{}{"type": "string"},
				},
			}),
			Required: []string{"query", "namespaces"},
		},
	}
}

func queryBestTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_best",
		Description: "Search namespaces and return the globally best results regardless of source namespace",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: queryParams(map[string]interface{}{
				"namespaces": map[string]interface{}{
					"type":        "array",
					"description": "Namespaces to search; omit for all namespaces",
					"items":       map[string]interface{}{"type": "string"},
				},
			}),
			Required: []string{"query"},
		},
	}
}

func addChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_chunks",
		Description: "Index pre-chunked documents into a namespace (created implicitly on first write)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"namespace": map[string]interface{}{
					"type":        "string",
					"description": "Target namespace",
				},
				"chunks": map[string]interface{}{
					"type":        "array",
					"description": "Chunk records to index",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id":             map[string]interface{}{"type": "string", "description": "Stable chunk ID (generated when omitted)"},
							"source_id":      map[string]interface{}{"type": "string", "description": "Originating document ID"},
							"position":       map[string]interface{}{"type": "integer", "description": "Chunk position within the document"},
							"text":           map[string]interface{}{"type": "string", "description": "Chunk text"},
							"title":          map[string]interface{}{"type": "string"},
							"author":         map[string]interface{}{"type": "string"},
							"department":     map[string]interface{}{"type": "string"},
							"document_type":  map[string]interface{}{"type": "string"},
							"tags":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
							"created_date":   map[string]interface{}{"type": "string"},
							"modified_date":  map[string]interface{}{"type": "string"},
							"language":       map[string]interface{}{"type": "string", "default": "en"},
							"security_level": map[string]interface{}{"type": "string", "default": "public"},
						},
						"required": []string{"text"},
					},
				},
			},
			Required: []string{"namespace", "chunks"},
		},
	}
}

func createNamespaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "create_namespace",
		Description: "Create a namespace explicitly with its metadata",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"namespace":   map[string]interface{}{"type": "string", "description": "Namespace ID (unique, immutable)"},
				"description": map[string]interface{}{"type": "string"},
				"department":  map[string]interface{}{"type": "string"},
				"contact":     map[string]interface{}{"type": "string"},
				"tags":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
			Required: []string{"namespace"},
		},
	}
}

func deleteNamespaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_namespace",
		Description: "Delete a namespace and all its chunks; the fallback namespace requires force",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"namespace": map[string]interface{}{"type": "string"},
				"force":     map[string]interface{}{"type": "boolean", "default": false},
			},
			Required: []string{"namespace"},
		},
	}
}

func migrateNamespaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "migrate_namespace",
		Description: "Move all chunks from one namespace to another (copy, verify, then delete the source)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source": map[string]interface{}{"type": "string"},
				"target": map[string]interface{}{"type": "string", "description": "Created implicitly when absent"},
				"keep_source": map[string]interface{}{
					"type":        "boolean",
					"description": "Copy without deleting the source",
					"default":     false,
				},
			},
			Required: []string{"source", "target"},
		},
	}
}

func cloneNamespaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clone_namespace",
		Description: "Copy all chunks from one namespace to another, keeping the source",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source": map[string]interface{}{"type": "string"},
				"target": map[string]interface{}{"type": "string"},
			},
			Required: []string{"source", "target"},
		},
	}
}

func listNamespacesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_namespaces",
		Description: "List namespaces with their metadata and counts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"department": map[string]interface{}{
					"type":        "string",
					"description": "Only namespaces owned by this department",
				},
			},
		},
	}
}

func namespaceStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "namespace_stats",
		Description: "Store sizes and usage analytics for one namespace",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"namespace": map[string]interface{}{"type": "string"},
				"top_n": map[string]interface{}{
					"type":        "integer",
					"description": "How many top-accessed chunks to include",
					"default":     10,
				},
			},
			Required: []string{"namespace"},
		},
	}
}

func backupNamespaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "backup_namespace",
		Description: "Write a namespace's record, chunks, and vectors to a JSON backup file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"namespace": map[string]interface{}{"type": "string"},
				"backup_dir": map[string]interface{}{
					"type":        "string",
					"description": "Directory for the backup file; defaults to a timestamped directory under backups/",
				},
			},
			Required: []string{"namespace"},
		},
	}
}

func restoreNamespaceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "restore_namespace",
		Description: "Load a backup file into a namespace, replacing its contents; the namespace is created if missing",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"backup_file": map[string]interface{}{"type": "string", "description": "Path to a backup JSON file"},
				"namespace": map[string]interface{}{
					"type":        "string",
					"description": "Restore into this namespace instead of the one named in the file",
				},
			},
			Required: []string{"backup_file"},
		},
	}
}

func namespaceOverlapTool() mcp.Tool {
	return mcp.Tool{
		Name:        "namespace_overlap",
		Description: "Estimate content overlap between two namespaces by sampling vectors from one and matching them in the other",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source": map[string]interface{}{"type": "string"},
				"target": map[string]interface{}{"type": "string"},
			},
			Required: []string{"source", "target"},
		},
	}
}

func systemOverviewTool() mcp.Tool {
	return mcp.Tool{
		Name:        "system_overview",
		Description: "Aggregate namespace, document, and chunk counts across the whole engine",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Query-cache and existence-filter hit/miss counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
