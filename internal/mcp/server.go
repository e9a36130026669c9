package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/revgate/internal/metrics"
	"github.com/joescharf/revgate/internal/models"
	"github.com/joescharf/revgate/internal/quality"
	"github.com/joescharf/revgate/internal/reviewer"
	"github.com/joescharf/revgate/internal/severity"
	"github.com/joescharf/revgate/internal/store"
)

// Server exposes classification, scoring, reviewer verification and metrics
// as MCP tools.
type Server struct {
	store    store.Store
	verifier *reviewer.Verifier
	calc     *quality.Calculator
	token    string
	version  string
}

// NewServer creates the MCP server wrapper. The token authenticates reviewer
// lookups; it is never included in a tool result. The verifier may be nil,
// in which case every reviewer is unverified.
func NewServer(s store.Store, v *reviewer.Verifier, token, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{
		store:    s,
		verifier: v,
		calc:     quality.NewCalculator(),
		token:    token,
		version:  version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("revgate", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.classifyTool())
	srv.AddTool(s.scoreTool())
	srv.AddTool(s.verifyReviewerTool())
	srv.AddTool(s.metricsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// revgate_classify
func (s *Server) classifyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("revgate_classify",
		mcp.WithDescription("Classify review text line by line into critical, warnings and suggestions. Lines matching no tier are dropped and near-duplicate lines are merged."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Review comment text, at most 10000 characters and 1000 lines")),
	)
	return tool, s.handleClassify
}

func (s *Server) handleClassify(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := severity.TextFrom(request.GetArguments()["text"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	findings, err := severity.Classify(text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(findings)
}

// revgate_score
func (s *Server) scoreTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("revgate_score",
		mcp.WithDescription("Score review text 0-100 with a category and per-dimension breakdown. An approval is only accepted from a reviewer verified to have write access to the repository."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Review comment text")),
		mcp.WithBoolean("approved", mcp.Description("Whether the reviewer approved the change")),
		mcp.WithString("reviewer", mcp.Description("Reviewer login, required when approved is true")),
		mcp.WithString("repo", mcp.Description("Repository as owner/name, required when approved is true")),
	)
	return tool, s.handleScore
}

func (s *Server) handleScore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	approved := false
	if v, ok := args["approved"]; ok && v != nil {
		var err error
		if approved, err = quality.ApprovalFrom(v); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	var auth *models.ReviewerAuth
	login := request.GetString("reviewer", "")
	if approved && login != "" {
		a, err := s.verify(ctx, login, request.GetString("repo", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		auth = &a
	}
	if err := quality.CheckApproval(approved, auth); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, err := severity.TextFrom(args["text"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.calc.Score(text, approved, auth)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(struct {
		*quality.Score
		Reviewer *models.ReviewerAuth `json:"reviewer,omitempty"`
	}{result, auth})
}

// revgate_verify_reviewer
func (s *Server) verifyReviewerTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("revgate_verify_reviewer",
		mcp.WithDescription("Check whether a login is a collaborator with write access on a repository. Results are cached for a few minutes."),
		mcp.WithString("login", mcp.Required(), mcp.Description("Reviewer login")),
		mcp.WithString("repo", mcp.Required(), mcp.Description("Repository as owner/name")),
	)
	return tool, s.handleVerifyReviewer
}

func (s *Server) handleVerifyReviewer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	login, err := request.RequireString("login")
	if err != nil {
		return mcp.NewToolResultError("login is required"), nil
	}
	repo, err := request.RequireString("repo")
	if err != nil {
		return mcp.NewToolResultError("repo is required"), nil
	}
	auth, err := s.verify(ctx, login, repo)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(auth)
}

// revgate_metrics
func (s *Server) metricsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("revgate_metrics",
		mcp.WithDescription("Aggregate review metrics. Pass a reviews array to summarize it directly, or omit it to summarize stored reviews, optionally filtered by repo."),
		mcp.WithArray("reviews",
			mcp.Description("Reviews as objects with approved (boolean), comment (string) and elapsedTime (number)"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithString("repo", mcp.Description("Filter stored reviews by repository owner/name")),
	)
	return tool, s.handleMetrics
}

func (s *Server) handleMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var reviews []metrics.Review

	if raw, ok := request.GetArguments()["reviews"]; ok && raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read reviews: %v", err)), nil
		}
		if reviews, err = metrics.DecodeReviews(data); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	} else {
		records, err := s.store.ListReviews(ctx, store.ReviewListFilter{Repo: request.GetString("repo", "")})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list reviews: %v", err)), nil
		}
		reviews = metrics.FromRecords(records)
	}

	m, err := metrics.Aggregate(reviews)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Server) verify(ctx context.Context, login, repo string) (models.ReviewerAuth, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return models.ReviewerAuth{}, errors.New("repo must be owner/name")
	}
	if s.verifier == nil {
		return models.ReviewerAuth{Login: login}, nil
	}
	return s.verifier.Verify(ctx, login, owner, name, s.token), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
