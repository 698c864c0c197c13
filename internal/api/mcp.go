package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/podium/internal/contentsync"
	"github.com/kalambet/podium/internal/feedback"
	"github.com/kalambet/podium/internal/presentation"
	"github.com/kalambet/podium/internal/ratelimit"
	"github.com/kalambet/podium/internal/storage"
)

// mcpActor is the rate limiting identity of MCP clients.
const mcpActor = "mcp"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Presentations *presentation.Manager
	Feedback      *feedback.Service
}

// NewMCPServer creates an MCP server with all podium tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"podium",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("podium: live presentation pages that fold audience feedback into the page content."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_processing_status",
			mcp.WithDescription("Show whether a feedback processing pass is scheduled for a presentation and how the last one ended."),
			mcp.WithString("presentation_id", mcp.Description("Presentation ID"), mcp.Required()),
		),
		mcpStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("retry_now",
			mcp.WithDescription("Run a feedback processing pass immediately, ignoring any retry backoff."),
			mcp.WithString("presentation_id", mcp.Description("Presentation ID"), mcp.Required()),
		),
		mcpRetryNow(deps),
	)

	s.AddTool(
		mcp.NewTool("reset_processing",
			mcp.WithDescription("Mark all feedback of a presentation unprocessed and rebuild the live section from scratch."),
			mcp.WithString("presentation_id", mcp.Description("Presentation ID"), mcp.Required()),
		),
		mcpReset(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Submit one audience feedback item to a presentation by its access code."),
			mcp.WithString("access_code", mcp.Description("Public access code of the presentation"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Feedback text"), mcp.Required()),
			mcp.WithString("participant", mcp.Description("Optional participant name")),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("list_feedback",
			mcp.WithDescription("List feedback submitted to a presentation, newest first."),
			mcp.WithString("presentation_id", mcp.Description("Presentation ID"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 20)")),
		),
		mcpListFeedback(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"podium://presentations",
			"Presentations",
			mcp.WithResourceDescription("Live presentations with their access codes"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePresentations(deps),
	)

	return s
}

func mcpStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("presentation_id")
		if err != nil {
			return mcpError("presentation_id is required"), nil
		}
		st, err := deps.Feedback.Status(id)
		if err != nil {
			return mcpError(mcpErrorText(err)), nil
		}
		b, err := json.Marshal(st)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRetryNow(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("presentation_id")
		if err != nil {
			return mcpError("presentation_id is required"), nil
		}
		res, err := deps.Feedback.RetryNow(ctx, mcpActor, id)
		if err != nil {
			return mcpError(mcpErrorText(err)), nil
		}
		return mcpText(fmt.Sprintf("Pass finished: %s", res)), nil
	}
}

func mcpReset(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("presentation_id")
		if err != nil {
			return mcpError("presentation_id is required"), nil
		}
		n, err := deps.Feedback.Reset(id)
		if err != nil {
			return mcpError(mcpErrorText(err)), nil
		}
		return mcpText(fmt.Sprintf("Reset %d feedback items; rebuild queued", n)), nil
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("access_code")
		if err != nil {
			return mcpError("access_code is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		_, id, err := deps.Presentations.PublicPage(code)
		if err != nil {
			return mcpError(mcpErrorText(err)), nil
		}
		ack, err := deps.Feedback.Submit(ctx, feedback.SubmitRequest{
			PresentationID: id,
			Content:        content,
			Participant:    req.GetString("participant", ""),
		})
		if err != nil {
			return mcpError(mcpErrorText(err)), nil
		}
		return mcpText(fmt.Sprintf("Feedback %s queued; next update at %s", ack.FeedbackID, ack.NextUpdate.Format("15:04:05"))), nil
	}
}

func mcpListFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("presentation_id")
		if err != nil {
			return mcpError("presentation_id is required"), nil
		}
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		items, err := deps.Feedback.List(id, limit, 0)
		if err != nil {
			return mcpError(mcpErrorText(err)), nil
		}
		if items == nil {
			items = []storage.Feedback{}
		}
		b, err := json.Marshal(items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal feedback: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourcePresentations(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := deps.Presentations.List("", 50, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list presentations: %w", err)
		}

		type presentationSummary struct {
			ID         string `json:"id"`
			Title      string `json:"title"`
			AccessCode string `json:"access_code"`
			Scheduled  bool   `json:"scheduled"`
		}

		summaries := make([]presentationSummary, len(list))
		for i, p := range list {
			title := p.Title
			if utf8.RuneCountInString(title) > 80 {
				title = string([]rune(title)[:80]) + "..."
			}
			summaries[i] = presentationSummary{
				ID:         p.ID,
				Title:      title,
				AccessCode: p.AccessCode,
				Scheduled:  p.ProcessingScheduled,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal presentations: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// mcpErrorText turns domain errors into short messages for tool results.
func mcpErrorText(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, contentsync.ErrPresentationGone):
		return "presentation not found"
	case errors.Is(err, ratelimit.ErrRateLimited):
		return "rate limit exceeded, try again later"
	case errors.Is(err, feedback.ErrPassInProgress):
		return "a processing pass is already running for this presentation"
	default:
		return err.Error()
	}
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
