package cmd

import (
	"io"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/recall/internal/config"
)

// resolveConfigPath picks the --config flag, then RECALL_CONFIG, then the
// XDG default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return config.ExpandHome(flag)
	}
	return config.DefaultPath()
}

// setupLogging installs the default slog logger and returns its level so
// a config reload can change it.
func setupLogging(w io.Writer, level, format string) *slog.LevelVar {
	lv := new(slog.LevelVar)
	if l, err := config.ParseLogLevel(level); err == nil {
		lv.Set(l)
	}
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return lv
}
