package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/recall/internal/query"
	"github.com/nextlevelbuilder/recall/internal/store"
)

// args wraps tool call arguments with typed accessors. Clients send JSON
// numbers as float64 and sometimes send lists as comma-separated strings.
type args map[string]any

func argsOf(req mcpgo.CallToolRequest) args {
	if m, ok := req.Params.Arguments.(map[string]any); ok {
		return m
	}
	return args{}
}

func (a args) str(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (a args) requireString(key string) (string, error) {
	s := a.str(key)
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// integer returns def when key is absent.
func (a args) integer(key string, def int) (int, error) {
	switch v := a[key].(type) {
	case nil:
		return def, nil
	case float64:
		if math.IsNaN(v) || v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return saturate(v), nil
	case int:
		return v, nil
	case int64:
		return saturate(float64(v)), nil
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)
		if (err != nil && !errors.Is(err, strconv.ErrRange)) || f != math.Trunc(f) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return saturate(f), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if (err != nil && !errors.Is(err, strconv.ErrRange)) || f != math.Trunc(f) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return saturate(f), nil
	}
	return 0, fmt.Errorf("%s must be an integer", key)
}

// saturate converts v to int, pinning values outside the int32 range to
// its bounds so oversized limits clamp high instead of wrapping.
func saturate(v float64) int {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

func (a args) flag(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (a args) list(key string) ([]string, error) {
	var out []string
	switch v := a[key].(type) {
	case nil:
		return nil, nil
	case []string:
		out = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a list of strings", key)
			}
			out = append(out, s)
		}
	case string:
		out = strings.Split(v, ",")
	default:
		return nil, fmt.Errorf("%s must be a list of strings", key)
	}
	trimmed := out[:0:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	return trimmed, nil
}

func (a args) roles(key string) ([]store.Role, error) {
	names, err := a.list(key)
	if err != nil {
		return nil, err
	}
	roles := make([]store.Role, 0, len(names))
	for _, n := range names {
		r, err := store.ParseRole(n)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// jsonResult serializes v as the text content of a tool result.
func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

// errorPayload is the body of a structured error result.
type errorPayload struct {
	Error       string   `json:"error"`
	Kind        string   `json:"kind,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Retryable   bool     `json:"retryable,omitempty"`
}

// errorResult turns a failed operation into a tool result flagged isError.
// Not-found and contention errors carry structured detail.
func errorResult(err error) *mcpgo.CallToolResult {
	p := errorPayload{Error: err.Error()}
	var nf *query.NotFoundError
	switch {
	case errors.As(err, &nf):
		p.Kind = "not_found"
		p.Suggestions = nf.Suggestions
	case store.IsBusy(err):
		p.Kind = "busy"
		p.Error = "index is busy, retry shortly"
		p.Retryable = true
	}
	data, mErr := json.Marshal(p)
	if mErr != nil {
		return mcpgo.NewToolResultError(err.Error())
	}
	return mcpgo.NewToolResultError(string(data))
}
