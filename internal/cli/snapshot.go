package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tessro/reprise/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect the saved playback snapshot",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved playback snapshot",
	Long: `Shows the playback state that will be restored when the device next
becomes ready, and the position playback would resume from.`,
	RunE: runSnapshotShow,
}

var snapshotClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved playback snapshot",
	RunE:  runSnapshotClear,
}

func init() {
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotClearCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	storage, err := openStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	snaps := snapshot.NewStore(storage, snapshot.WithStaleness(cfg.Session.StalenessWindow()))
	snap, err := snaps.Peek(ctx)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if snap == nil || !snap.HasTrack() {
		if JSONOutput() {
			return printJSON(map[string]any{"snapshot": nil})
		}
		fmt.Println("No playback snapshot saved.")
		return nil
	}

	now := time.Now()
	stale := snap.IsStale(now, snaps.Staleness())
	resume := snap.ResumePosition(now)

	if JSONOutput() {
		return printJSON(map[string]any{
			"snapshot":     snap,
			"stale":        stale,
			"resume_at_ms": resume.Milliseconds(),
		})
	}

	width := min(terminalWidth(80), 80)
	t := snap.Track
	fmt.Println(titleStyle.Render(TruncateString(t.Name, width)))
	if len(t.Artists) > 0 {
		fmt.Println(TruncateString(strings.Join(t.Artists, ", "), width))
	}
	if t.Album != "" {
		fmt.Println(subtleStyle.Render(TruncateString(t.Album, width)))
	}
	fmt.Println()

	state := "Paused"
	if snap.IsPlaying {
		state = playingStyle.Render("Playing")
	}
	saved := snap.SavedAt()

	table := NewTableWriter(os.Stdout)
	table.Row("State:", state)
	table.Row("Position:", fmt.Sprintf("%s / %s", FormatDuration(time.Duration(snap.Position)*time.Millisecond), FormatDuration(snap.TrackDuration())))
	table.Row("Resumes at:", FormatDuration(resume))
	if pc := snap.PlayContext(); pc != nil {
		table.Row("Context:", fmt.Sprintf("%s (%s)", pc.URI, pc.Kind))
	}
	table.Row("Saved:", fmt.Sprintf("%s (%s)", humanize.Time(saved), saved.Format(time.RFC3339)))
	table.Flush()

	if stale {
		fmt.Println()
		fmt.Println(warnStyle.Render(fmt.Sprintf("Snapshot is older than %s and will not be restored.", snaps.Staleness())))
	}
	return nil
}

func runSnapshotClear(cmd *cobra.Command, args []string) error {
	storage, err := openStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	if err := snapshot.NewStore(storage).Clear(commandContext(cmd)); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	if JSONOutput() {
		return printJSON(map[string]string{"status": "cleared"})
	}
	fmt.Println("Playback snapshot cleared.")
	return nil
}
