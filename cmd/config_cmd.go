package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/config"
	"github.com/nextlevelbuilder/recall/internal/indexer"
	"github.com/nextlevelbuilder/recall/internal/tagger"
)

func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and check configuration",
	}
	cmd.AddCommand(configShowCmd(opts))
	cmd.AddCommand(configPathCmd(opts))
	cmd.AddCommand(configValidateCmd(opts))
	return cmd
}

func configShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			format := opts.output
			if format == outputTable {
				format = outputJSON
			}
			return render(cmd.OutOrStdout(), format, redactConfig(cfg), nil)
		},
	}
}

func configPathCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath(opts.configPath))
		},
	}
}

func configValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and compile tag rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if _, err := tagger.New(cfg.Tagging.Rules); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if _, err := indexer.CompileExcludes(cfg.Exclude); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config at %s is valid (%d tag rules).\n", path, len(cfg.Tagging.Rules))
			return nil
		},
	}
}

// redactConfig returns a JSON-safe copy with telemetry header values masked.
func redactConfig(cfg *config.Config) map[string]any {
	data, _ := json.Marshal(cfg)
	var raw map[string]any
	json.Unmarshal(data, &raw)
	if tel, ok := raw["telemetry"].(map[string]any); ok {
		if headers, ok := tel["headers"].(map[string]any); ok {
			for k, v := range headers {
				headers[k] = maskSecret(fmt.Sprint(v))
			}
		}
	}
	return raw
}

func maskSecret(s string) string {
	if len(s) > 8 {
		return s[:4] + "****" + s[len(s)-4:]
	}
	if s != "" {
		return "****"
	}
	return s
}
