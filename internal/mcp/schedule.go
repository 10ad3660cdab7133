package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// RunSchedule runs an incremental scan at every tick of the cron expression
// until ctx is done. Scan failures are logged and the schedule continues.
func (s *Server) RunSchedule(ctx context.Context, expr string) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid cron expression: %s", expr)
	}
	slog.Info("index schedule started", "expr", expr)
	for {
		next, err := gronx.NextTickAfter(expr, time.Now(), false)
		if err != nil {
			return fmt.Errorf("index schedule: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		stats, err := s.Index(ctx)
		if err != nil {
			slog.Warn("scheduled index failed", "error", err)
			continue
		}
		if stats.Messages > 0 || stats.Invalidated > 0 {
			slog.Info("scheduled index", "files", stats.Files, "messages", stats.Messages, "invalidated", stats.Invalidated)
		}
	}
}
