package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/recall/internal/query"
	"github.com/nextlevelbuilder/recall/internal/store"
)

// Output formats for get_conversation.
const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

func (s *Server) registerTools() {
	tagsParam := func(desc string, opts ...mcpgo.PropertyOption) mcpgo.ToolOption {
		return mcpgo.WithArray("tags", append([]mcpgo.PropertyOption{mcpgo.Description(desc), mcpgo.WithStringItems()}, opts...)...)
	}

	s.mcp.AddTool(mcpgo.NewTool("search_history",
		mcpgo.WithDescription("Search across all indexed conversations. Results are ranked by relevance."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithString("query", mcpgo.Required(),
			mcpgo.Description(`Full-text search query (FTS5 syntax: AND, OR, NOT, "phrases")`)),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum number of results (default 10, max 500)")),
		mcpgo.WithString("project", mcpgo.Description("Filter by project directory path (substring match)")),
		mcpgo.WithString("date_from", mcpgo.Description(`Only messages at or after this time (ISO 8601, e.g. "2026-01-15")`)),
		mcpgo.WithString("date_to", mcpgo.Description("Only messages up to this time; a bare date includes the whole day")),
		tagsParam(`Only messages carrying ALL of these tags (e.g. ["review:ux", "insight"])`),
	), s.handleSearch)

	s.mcp.AddTool(mcpgo.NewTool("get_conversation",
		mcpgo.WithDescription("Retrieve messages from a session. A slug shared by several sessions "+
			"(continued conversations) returns the whole chain as one chronological stream."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithString("session_id_or_slug", mcpgo.Required(),
			mcpgo.Description(`Session UUID or slug (e.g. "sorted-humming-fox")`)),
		mcpgo.WithString("sessions", mcpgo.Description(`Chain positions to include, 1-based (e.g. "2", "2-3", "1,3-5"). Ignored for session ids.`)),
		mcpgo.WithString("around_timestamp", mcpgo.Description("Return a window of messages centered on this timestamp")),
		mcpgo.WithNumber("window", mcpgo.Description("Messages on each side of around_timestamp (default 10)")),
		mcpgo.WithArray("roles", mcpgo.Description("Only these roles: user, assistant, tool_summary, plan"), mcpgo.WithStringItems()),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum messages to return (default 200, max 500)")),
		mcpgo.WithString("format", mcpgo.Enum(formatMarkdown, formatJSON),
			mcpgo.Description("markdown (default, compact reading view) or json (full records)")),
	), s.handleConversation)

	s.mcp.AddTool(mcpgo.NewTool("list_sessions",
		mcpgo.WithDescription("List sessions, most recent first. With slug, list that chain in order with positions."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithString("slug", mcpgo.Description("Only sessions of this slug chain, oldest first")),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum sessions to return (default 20, max 500)")),
		mcpgo.WithString("project", mcpgo.Description("Filter by project directory path (substring match)")),
		mcpgo.WithString("date_from", mcpgo.Description("Sessions active at or after this time")),
		mcpgo.WithString("date_to", mcpgo.Description("Sessions started up to this time")),
		tagsParam(`Only sessions carrying ALL of these tags (e.g. ["workstream:search", "has:tests"])`),
	), s.handleListSessions)

	s.mcp.AddTool(mcpgo.NewTool("list_tags",
		mcpgo.WithDescription("List tags with auto/manual usage counts."),
		mcpgo.WithReadOnlyHintAnnotation(true),
		mcpgo.WithString("scope", mcpgo.Enum(query.ScopeAll, query.ScopeMessage, query.ScopeSession),
			mcpgo.Description(`"all" (default), "message" or "session"`)),
	), s.handleListTags)

	s.mcp.AddTool(mcpgo.NewTool("tag_message",
		mcpgo.WithDescription("Manually tag a message for later discovery."),
		mcpgo.WithNumber("message_id", mcpgo.Required(),
			mcpgo.Description("Message id from search_history or get_conversation")),
		tagsParam(`Tags to apply (e.g. ["review:ux", "important"])`, mcpgo.Required()),
	), s.handleTagMessage)

	s.mcp.AddTool(mcpgo.NewTool("tag_session",
		mcpgo.WithDescription("Manually tag a session, e.g. to associate it with a workstream."),
		mcpgo.WithString("session_id", mcpgo.Required(), mcpgo.Description("Session UUID")),
		tagsParam(`Tags to apply (e.g. ["workstream:search", "important"])`, mcpgo.Required()),
	), s.handleTagSession)

	s.mcp.AddTool(mcpgo.NewTool("reindex",
		mcpgo.WithDescription("Rebuild the whole index from the transcripts. Message ids change and "+
			"message tags are dropped; manual session tags are kept."),
		mcpgo.WithDestructiveHintAnnotation(true),
	), s.handleReindex)

	s.mcp.AddTool(mcpgo.NewTool("index_status",
		mcpgo.WithDescription("Report index size and the last scan. With refresh, index new transcript data first."),
		mcpgo.WithBoolean("refresh", mcpgo.Description("Run an incremental scan before reporting")),
	), s.handleIndexStatus)
}

func (s *Server) handleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	a := argsOf(req)
	q, err := a.requireString("query")
	if err != nil {
		return errorResult(err), nil
	}
	limit, err := a.integer("limit", query.DefaultSearchLimit)
	if err != nil {
		return errorResult(err), nil
	}
	tags, err := a.list("tags")
	if err != nil {
		return errorResult(err), nil
	}

	hits, err := s.query.Search(ctx, query.SearchParams{
		Query:    q,
		Project:  a.str("project"),
		DateFrom: a.str("date_from"),
		DateTo:   a.str("date_to"),
		Tags:     tags,
		Limit:    limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(hits)
}

func (s *Server) handleConversation(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	a := argsOf(req)
	id, err := a.requireString("session_id_or_slug")
	if err != nil {
		return errorResult(err), nil
	}
	format := a.str("format")
	if format == "" {
		format = formatMarkdown
	}
	if format != formatMarkdown && format != formatJSON {
		return errorResult(fmt.Errorf("unknown format %q (want markdown or json)", format)), nil
	}
	roles, err := a.roles("roles")
	if err != nil {
		return errorResult(err), nil
	}
	limit, err := a.integer("limit", query.DefaultConversationLimit)
	if err != nil {
		return errorResult(err), nil
	}
	window, err := a.integer("window", query.DefaultWindow)
	if err != nil {
		return errorResult(err), nil
	}

	c, err := s.query.Conversation(ctx, query.ConversationParams{
		ID:       id,
		Sessions: a.str("sessions"),
		Roles:    roles,
		Around:   a.str("around_timestamp"),
		Window:   window,
		Limit:    limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	if format == formatMarkdown {
		return mcpgo.NewToolResultText(query.FormatMarkdown(c)), nil
	}
	return jsonResult(c)
}

func (s *Server) handleListSessions(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	a := argsOf(req)
	limit, err := a.integer("limit", query.DefaultSessionLimit)
	if err != nil {
		return errorResult(err), nil
	}
	tags, err := a.list("tags")
	if err != nil {
		return errorResult(err), nil
	}

	list, err := s.query.ListSessions(ctx, query.ListParams{
		Slug:     a.str("slug"),
		Project:  a.str("project"),
		DateFrom: a.str("date_from"),
		DateTo:   a.str("date_to"),
		Tags:     tags,
		Limit:    limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(list)
}

func (s *Server) handleListTags(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	tags, err := s.query.TagCatalogue(ctx, argsOf(req).str("scope"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(tags)
}

func requireTags(a args) ([]string, error) {
	tags, err := a.list("tags")
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("tags is required")
	}
	return tags, nil
}

func (s *Server) handleTagMessage(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	a := argsOf(req)
	id, err := a.integer("message_id", 0)
	if err != nil {
		return errorResult(err), nil
	}
	if id <= 0 {
		return errorResult(fmt.Errorf("message_id is required")), nil
	}
	tags, err := requireTags(a)
	if err != nil {
		return errorResult(err), nil
	}

	res, err := s.query.TagMessage(ctx, int64(id), tags)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleTagSession(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	a := argsOf(req)
	id, err := a.requireString("session_id")
	if err != nil {
		return errorResult(err), nil
	}
	tags, err := requireTags(a)
	if err != nil {
		return errorResult(err), nil
	}

	res, err := s.query.TagSession(ctx, id, tags)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res)
}

// reindexResult is the reindex tool's reply.
type reindexResult struct {
	Status          string  `json:"status"`
	RunID           string  `json:"run_id"`
	FilesIndexed    int     `json:"files_indexed"`
	MessagesIndexed int     `json:"messages_indexed"`
	SessionsFound   int     `json:"sessions_found"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (s *Server) handleReindex(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	stats, err := s.Reindex(ctx)
	if errors.Is(err, ErrRateLimited) {
		return errorResult(fmt.Errorf("%w: try again in a minute", err)), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(reindexResult{
		Status:          "complete",
		RunID:           stats.RunID,
		FilesIndexed:    stats.Files,
		MessagesIndexed: stats.Messages,
		SessionsFound:   stats.Sessions,
		DurationSeconds: stats.DurationSeconds,
	})
}

// statusResult is the index_status tool's reply.
type statusResult struct {
	DBPath          string       `json:"db_path"`
	TranscriptsRoot string       `json:"transcripts_root"`
	Counts          store.Counts `json:"counts"`
	LastRun         *RunStatus   `json:"last_run,omitempty"`
}

func (s *Server) handleIndexStatus(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if argsOf(req).flag("refresh") {
		if _, err := s.Index(ctx); err != nil {
			return errorResult(err), nil
		}
	}
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(statusResult{
		DBPath:          s.store.Path(),
		TranscriptsRoot: s.indexer.Root(),
		Counts:          counts,
		LastRun:         s.LastRun(),
	})
}
