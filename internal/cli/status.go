package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/reprise/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current playback status",
	Long:  `Shows the playback state of the running reprise session.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := daemon().State(commandContext(cmd))
	if err != nil {
		return err
	}
	if JSONOutput() {
		return printJSON(st)
	}
	fmt.Print(renderStatus(st, min(terminalWidth(80), 80)))
	return nil
}

func renderStatus(st *server.StateView, width int) string {
	var b strings.Builder

	device := "not ready"
	if st.DeviceReady {
		device = "ready"
	}
	fmt.Fprintf(&b, "%s Device %s", StatusIcon(st.DeviceReady), device)
	if st.Restoring {
		b.WriteString(warnStyle.Render(" (restoring)"))
	}
	b.WriteString("\n")

	if st.Track == nil {
		b.WriteString("No active playback\n")
		return b.String()
	}
	b.WriteString("\n")

	icon := "⏸"
	if st.IsPlaying {
		icon = playingStyle.Render("▶")
	}
	fmt.Fprintf(&b, "%s %s\n", icon, titleStyle.Render(TruncateString(st.Track.Name, width-2)))
	if len(st.Track.Artists) > 0 {
		fmt.Fprintf(&b, "  %s\n", TruncateString(strings.Join(st.Track.Artists, ", "), width-2))
	}
	if st.Track.Album != "" {
		fmt.Fprintf(&b, "  %s\n", subtleStyle.Render(TruncateString(st.Track.Album, width-2)))
	}

	pos := time.Duration(st.PositionMS) * time.Millisecond
	dur := time.Duration(st.DurationMS) * time.Millisecond
	elapsed, total := FormatDuration(pos), FormatDuration(dur)
	bar := max(width-len(elapsed)-len(total)-4, 10)
	fmt.Fprintf(&b, "  %s %s %s\n", elapsed, FormatProgress(pos, dur, bar), total)

	if st.Context != nil {
		fmt.Fprintf(&b, "  %s\n", subtleStyle.Render(fmt.Sprintf("from %s %s", st.Context.Type, st.Context.URI)))
	}
	return b.String()
}
