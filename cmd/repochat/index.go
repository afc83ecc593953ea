package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"repochat/internal/service"
)

var indexCmd = &cobra.Command{
	Use:   "index <repository>",
	Short: "Build or refresh the cached index of a repository",
	Long: `Build the index of a repository without starting a chat.

When a usable index is cached it is reused. No language model key is needed.

Examples:
  repochat index .
  repochat index https://github.com/SylphAI-Inc/AdalFlow`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx, cancel := newContext()
	defer cancel()

	s, err := service.Open(ctx, cfg, args[0], service.IndexOnly(), service.WithLogger(logger))
	if err != nil {
		return handleOpenError(cmd, err)
	}
	out := cmd.OutOrStdout()
	state := "reused"
	if s.Rebuilt() {
		state = "built"
	}
	fmt.Fprintf(out, "Repository: %s\n", s.Name())
	fmt.Fprintf(out, "Index:      %s (%s)\n", s.Layout().CacheFile, state)
	fmt.Fprintf(out, "Units:      %d\n", s.UnitCount())
	if summary := s.Summary(); summary != "" {
		fmt.Fprintf(out, "Summary:    %s\n", summary)
	}
	return nil
}
