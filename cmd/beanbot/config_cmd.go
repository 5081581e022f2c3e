package main

import (
	"fmt"
	"io"

	"beanbot/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, meta, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg, meta)
		},
	})
	return cmd
}

func printConfig(w io.Writer, cfg config.Config, meta config.Metadata) error {
	source := meta.ConfigFile
	if source == "" {
		source = "defaults and environment"
	}
	fmt.Fprintf(w, "%s %s\n", bold("Config source:"), cyan(source))
	if meta.EnvFile != "" {
		fmt.Fprintf(w, "%s %s\n", bold("Env file:"), cyan(meta.EnvFile))
	}
	if err := cfg.RequireCredentials(); err != nil {
		fmt.Fprintf(w, "%s %v\n", yellow("Not ready to serve:"), err)
	} else {
		fmt.Fprintln(w, green("Ready to serve"))
	}
	fmt.Fprintln(w, gray("---"))

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
