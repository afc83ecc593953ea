package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"repochat/internal/service"
	"repochat/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat [repository]",
	Short: "Chat about a repository in the terminal UI",
	Long: `Open the interactive chat. The repository defaults to the current directory.

Logs are written to repochat.log in the data directory.

Keys: enter asks, ctrl+l clears the chat, ctrl+o toggles source excerpts,
pgup/pgdown scroll, ctrl+c quits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	// "repochat <repo>" behaves like "repochat chat <repo>"
	rootCmd.Args = chatCmd.Args
	rootCmd.RunE = runChat
}

func runChat(cmd *cobra.Command, args []string) error {
	// credentials are checked before the UI takes over the terminal
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	logger, err := newFileLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx, cancel := newContext()
	defer cancel()

	input := "."
	if len(args) == 1 {
		input = args[0]
	}
	open := func(ctx context.Context) (tui.ChatPort, error) {
		s, err := service.Open(ctx, cfg, input, service.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	final, err := tea.NewProgram(tui.New(ctx, open), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("chat UI: %w", err)
	}
	if m, ok := final.(tui.Model); ok && m.Err() != nil {
		return handleOpenError(cmd, m.Err())
	}
	return nil
}
