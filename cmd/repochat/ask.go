package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"repochat/internal/service"
)

var askShowSource bool

var askCmd = &cobra.Command{
	Use:   "ask <repository> <question>",
	Short: "Ask one question about a repository and print the answer",
	Long: `Answer a single question without starting the chat UI.

Examples:
  repochat ask . "Show me the implementation of the RAG class"
  repochat ask ./service "how is memory handled?" --source=false`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowSource, "source", true, "Print the source context used for the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
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

	s, err := service.Open(ctx, cfg, args[0], service.WithLogger(logger))
	if err != nil {
		return handleOpenError(cmd, err)
	}
	msg, err := s.Ask(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, msg.Content)
	if askShowSource && msg.Context != "" {
		fmt.Fprintf(out, "\n--- source from %s ---\n```%s\n%s\n```\n", msg.FilePath, msg.Language, msg.Context)
	}
	return nil
}
