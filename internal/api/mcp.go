package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/curator/internal/pagination"
	"github.com/kalambet/curator/internal/storage"
)

// NewMCPServer creates an MCP server with the curation and pagination tools
// registered. It shares Deps with the HTTP surface; the bearer token is
// ignored here since MCP transports carry their own authentication.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"curator",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("curator — query and curate an inference/feedback log for dataset building."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("curation_summary",
			mcp.WithDescription("Count a function's inferences, its feedback coverage for a metric, and how many rows pass the metric's curation predicate."),
			mcp.WithString("function", mcp.Description("Function name"), mcp.Required()),
			mcp.WithString("metric", mcp.Description("Metric name"), mcp.Required()),
			mcp.WithNumber("threshold", mcp.Description("Override threshold for float metrics")),
		),
		mcpCurationSummary(deps),
	)

	s.AddTool(
		mcp.NewTool("get_curated_inferences",
			mcp.WithDescription("Return inference rows passing a metric's curation predicate, parsed and ready for dataset building. Omit the metric for an unfiltered sample."),
			mcp.WithString("function", mcp.Description("Function name"), mcp.Required()),
			mcp.WithString("metric", mcp.Description("Metric name (optional)")),
			mcp.WithNumber("threshold", mcp.Description("Override threshold for float metrics")),
			mcp.WithNumber("max_samples", mcp.Description("Maximum rows to return (default 100)")),
		),
		mcpGetCurated(deps),
	)

	s.AddTool(
		mcp.NewTool("list_inferences",
			mcp.WithDescription("Page through the inference table, newest first, with keyset cursors."),
			mcp.WithNumber("limit", mcp.Description("Page size (default 20)")),
			mcp.WithString("before", mcp.Description("Return the page older than this inference id")),
			mcp.WithString("after", mcp.Description("Return the page newer than this inference id")),
		),
		mcpListInferences(deps),
	)

	s.AddTool(
		mcp.NewTool("list_episodes",
			mcp.WithDescription("Page through episodes (inference groups), freshest first, with keyset cursors."),
			mcp.WithNumber("limit", mcp.Description("Page size (default 20)")),
			mcp.WithString("before", mcp.Description("Return the page older than this inference id")),
			mcp.WithString("after", mcp.Description("Return the page newer than this inference id")),
		),
		mcpListEpisodes(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"log://bounds",
			"Inference Log Bounds",
			mcp.WithResourceDescription("First and last inference ids currently present"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBounds(deps),
	)

	return s
}

func mcpCurationSummary(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		function, err := req.RequireString("function")
		if err != nil {
			return mcpError("function is required"), nil
		}
		metric, err := req.RequireString("metric")
		if err != nil {
			return mcpError("metric is required"), nil
		}
		threshold := mcpThreshold(req)

		s, err := deps.Orchestrator.MetricSummary(ctx, function, metric, threshold)
		if err != nil {
			return mcpError(fmt.Sprintf("summary failed: %v", err)), nil
		}
		return mcpJSON(s)
	}
}

func mcpGetCurated(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		function, err := req.RequireString("function")
		if err != nil {
			return mcpError("function is required"), nil
		}
		metric := req.GetString("metric", "")
		threshold := mcpThreshold(req)
		maxSamples := req.GetInt("max_samples", 100)

		d, err := deps.Orchestrator.BuildDataset(ctx, function, metric, threshold, maxSamples)
		if err != nil {
			return mcpError(fmt.Sprintf("curation failed: %v", err)), nil
		}
		return mcpJSON(d)
	}
}

func mcpListInferences(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		cursor, err := pagination.FromParams(req.GetString("before", ""), req.GetString("after", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		page, err := deps.Orchestrator.InferencePage(ctx, limit, cursor)
		if err != nil {
			return mcpError(fmt.Sprintf("listing inferences failed: %v", err)), nil
		}
		return mcpJSON(page)
	}
}

func mcpListEpisodes(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		cursor, err := pagination.FromParams(req.GetString("before", ""), req.GetString("after", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		page, err := deps.Orchestrator.EpisodePage(ctx, limit, cursor)
		if err != nil {
			return mcpError(fmt.Sprintf("listing episodes failed: %v", err)), nil
		}
		return mcpJSON(page)
	}
}

func mcpResourceBounds(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := deps.Pagination.InferenceBounds(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return []mcp.ResourceContents{mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "{}",
			}}, nil
		}
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}}, nil
	}
}

func mcpThreshold(req mcp.CallToolRequest) *float64 {
	v := req.GetFloat("threshold", -1)
	if v < 0 {
		return nil
	}
	return &v
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcpText(string(data)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
