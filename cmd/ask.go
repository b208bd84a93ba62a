package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/truenorth/truenorth/internal/app"
	"github.com/truenorth/truenorth/internal/config"
	"github.com/truenorth/truenorth/internal/log"
	"github.com/truenorth/truenorth/internal/rag"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), cmd, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

// runAsk runs one pipeline invocation and prints the streamed answer.
// Useful for smoke-testing a deployment without a WebSocket client.
func runAsk(ctx context.Context, cmd *cobra.Command, question string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelWarn})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	docs, language, err := a.Pipeline.HandleRetrieval(ctx, question)
	if err != nil {
		return describeFailure(err)
	}

	stream, err := a.Pipeline.GenerateStream(ctx, question, docs, language)
	if err != nil {
		return describeFailure(err)
	}

	out := cmd.OutOrStdout()
	for chunk, streamErr := range stream {
		if streamErr != nil {
			fmt.Fprintln(out)
			return fmt.Errorf("stream terminated: %w", streamErr)
		}
		fmt.Fprint(out, chunk)
	}
	fmt.Fprintln(out)
	return nil
}

// describeFailure keeps the classified cause while hinting whether a
// plain retry could help.
func describeFailure(err error) error {
	var e *rag.Error
	if errors.As(err, &e) && e.Retryable {
		return fmt.Errorf("%s (temporary, try again): %w", e.Message, err)
	}
	return err
}
