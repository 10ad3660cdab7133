package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/indexer"
	"github.com/nextlevelbuilder/recall/internal/store"
	"github.com/nextlevelbuilder/recall/internal/tagger"
)

func doctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, index and transcript locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, opts)
		},
	}
}

func runDoctor(cmd *cobra.Command, opts *rootOptions) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "recall doctor")
	fmt.Fprintf(w, "  Version:  %s\n", Version)
	fmt.Fprintf(w, "  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  Go:       %s\n", runtime.Version())
	fmt.Fprintln(w)

	cfg, cfgPath, err := opts.loadConfig()
	checkPath(w, "Config:", cfgPath)
	if err != nil {
		fmt.Fprintf(w, "  Config load error: %s\n", err)
		return nil
	}

	if _, err := tagger.New(cfg.Tagging.Rules); err != nil {
		fmt.Fprintf(w, "  Tag rules: %s\n", err)
	} else {
		fmt.Fprintf(w, "  Tag rules: %d custom\n", len(cfg.Tagging.Rules))
	}

	fmt.Fprintln(w)
	checkPath(w, "Index:", cfg.DBPath)
	if _, err := os.Stat(cfg.DBPath); err == nil {
		s, err := store.Open(cmd.Context(), cfg.DBPath)
		if err != nil {
			fmt.Fprintf(w, "    open error: %s\n", formatError(err))
		} else {
			if c, err := s.Counts(cmd.Context()); err == nil {
				fmt.Fprintf(w, "    %d files, %d sessions, %d messages, %d message tags, %d session tags\n",
					c.Files, c.Sessions, c.Messages, c.MessageTags, c.SessionTags)
			}
			s.Close()
		}
	}

	checkPath(w, "Transcripts:", cfg.TranscriptsDir)
	exclude, err := indexer.CompileExcludes(cfg.Exclude)
	if err != nil {
		fmt.Fprintf(w, "    %s\n", err)
	} else if files, err := indexer.Discover(cfg.TranscriptsDir, exclude...); err == nil {
		fmt.Fprintf(w, "    %d transcript files (%d exclude patterns)\n", len(files), len(exclude))
	}
	if cfg.MarkersDir == "" {
		fmt.Fprintf(w, "  %-13s disabled\n", "Markers:")
	} else {
		checkPath(w, "Markers:", cfg.MarkersDir)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-13s %s\n", "Tokenizer:", cfg.Tokenizer)
	if cfg.Telemetry.Enabled {
		fmt.Fprintf(w, "  %-13s %s (%s)\n", "Telemetry:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	} else {
		fmt.Fprintf(w, "  %-13s disabled\n", "Telemetry:")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Doctor check complete.")
	return nil
}

func checkPath(w io.Writer, label, path string) {
	status := "OK"
	if _, err := os.Stat(path); err != nil {
		status = "NOT FOUND"
	}
	fmt.Fprintf(w, "  %-13s %s (%s)\n", label, path, status)
}
