package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tessro/reprise/internal/tail"
)

var (
	tailNoEmoji   bool
	tailTimestamp bool
	tailFormat    string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow playback changes in real-time",
	Long: `Follow the running reprise session and print changes as they happen.

Events tracked:
  - Track changes, completions and skips
  - Pause/Resume
  - Device ready/not ready
  - Playback restoration
  - Session notifications

Template fields: .Type .Emoji .Time .Title .Artist .Album .Context .Level .Text`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVar(&daemonAddr, "addr", "", "address of the running reprise server (default: server.addr from config)")
	tailCmd.Flags().BoolVar(&tailNoEmoji, "no-emoji", false, "disable emoji output")
	tailCmd.Flags().BoolVarP(&tailTimestamp, "timestamp", "t", false, "show timestamps")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", "", "custom format template")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	formatter := tail.NewFormatter(
		tail.WithEmoji(!tailNoEmoji),
		tail.WithTimestamp(tailTimestamp),
		tail.WithTemplate(tailFormat),
	)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := tail.NewWatcher(daemon().baseURL+"/events", logger)
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	if !JSONOutput() {
		fmt.Fprintln(os.Stderr, subtleStyle.Render("Following "+daemon().baseURL+" (Ctrl+C to stop)"))
	}
	for e := range watcher.Events() {
		if JSONOutput() {
			if err := printJSON(tailJSON(e)); err != nil {
				return err
			}
			continue
		}
		fmt.Println(formatter.Format(e))
	}

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tail: %w", err)
	}
	return nil
}

func tailJSON(e tail.Event) map[string]any {
	out := map[string]any{
		"type":      e.Type.String(),
		"timestamp": e.Timestamp,
	}
	if e.Current != nil {
		out["state"] = e.Current
	}
	if e.Message != nil {
		out["message"] = e.Message
	}
	return out
}
