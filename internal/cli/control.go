package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/reprise/internal/core"
)

var daemonAddr string

var toggleCmd = &cobra.Command{
	Use:     "toggle",
	Aliases: []string{"pause", "resume"},
	Short:   "Toggle play/pause",
	Long:    `Pause when playing and resume otherwise.`,
	Args:    cobra.NoArgs,
	RunE:    runToggle,
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to next track",
	Args:  cobra.NoArgs,
	RunE:  runSkip("next"),
}

var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go to previous track",
	Args:  cobra.NoArgs,
	RunE:  runSkip("previous"),
}

var seekCmd = &cobra.Command{
	Use:   "seek <position>",
	Short: "Seek within the current track",
	Long: `Seek to a position in the current track.

Examples:
  reprise seek 90      # 1:30
  reprise seek 2:15    # 2:15`,
	Args: cobra.ExactArgs(1),
	RunE: runSeek,
}

var playOffset int

var playCmd = &cobra.Command{
	Use:   "play <uri>",
	Short: "Play a track, album or playlist",
	Long: `Play a Spotify URI on the session's device.

A track URI plays within its album when the album has more than one track.
Album and playlist URIs start at --offset.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

var queueCmd = &cobra.Command{
	Use:   "queue <uri>",
	Short: "Add a track to the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueue,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the session and forget credentials",
	Long: `Stops the playback device and removes the stored credential and
playback snapshot. The running server keeps serving but no longer plays.`,
	Args: cobra.NoArgs,
	RunE: runDisconnect,
}

func init() {
	for _, c := range []*cobra.Command{toggleCmd, nextCmd, prevCmd, seekCmd, playCmd, queueCmd, disconnectCmd, statusCmd} {
		c.Flags().StringVar(&daemonAddr, "addr", "", "address of the running reprise server (default: server.addr from config)")
		rootCmd.AddCommand(c)
	}
	playCmd.Flags().IntVar(&playOffset, "offset", 0, "track offset within an album or playlist")
}

func daemon() *daemonClient {
	addr := daemonAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	return newDaemonClient(addr)
}

func runToggle(cmd *cobra.Command, args []string) error {
	st, err := daemon().Command(commandContext(cmd), "toggle", nil)
	if err != nil {
		return err
	}
	if JSONOutput() {
		return printJSON(st)
	}
	if st.IsPlaying {
		fmt.Println("▶ Playing")
	} else {
		fmt.Println("⏸ Paused")
	}
	return nil
}

func runSkip(direction string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := daemon().Command(commandContext(cmd), direction, nil)
		if err != nil {
			return err
		}
		if JSONOutput() {
			return printJSON(st)
		}
		if direction == "next" {
			fmt.Println("⏭ Skipped to next track")
		} else {
			fmt.Println("⏮ Back to previous track")
		}
		return nil
	}
}

func runSeek(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}
	st, err := daemon().Command(commandContext(cmd), "seek", map[string]int64{"position_ms": pos.Milliseconds()})
	if err != nil {
		return err
	}
	if JSONOutput() {
		return printJSON(st)
	}
	fmt.Printf("Seeked to %s\n", FormatDuration(time.Duration(st.PositionMS)*time.Millisecond))
	return nil
}

// parsePosition accepts seconds ("90"), mm:ss or hh:mm:ss.
func parsePosition(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	uri := args[0]
	body := map[string]any{}
	switch core.KindOf(uri) {
	case core.ContextAlbum, core.ContextPlaylist, core.ContextArtist:
		body["context_uri"] = uri
		body["offset"] = playOffset
	default:
		body["uri"] = uri
	}

	st, err := daemon().Command(commandContext(cmd), "play", body)
	if err != nil {
		return err
	}
	if JSONOutput() {
		return printJSON(st)
	}
	fmt.Printf("▶ Playing %s\n", uri)
	return nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	st, err := daemon().Command(commandContext(cmd), "queue", map[string]string{"uri": args[0]})
	if err != nil {
		return err
	}
	if JSONOutput() {
		return printJSON(st)
	}
	fmt.Printf("Added %s to queue\n", args[0])
	return nil
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	st, err := daemon().Command(commandContext(cmd), "disconnect", nil)
	if err != nil {
		return err
	}
	if JSONOutput() {
		return printJSON(st)
	}
	fmt.Println("Disconnected. Run 'reprise auth login' to sign in again.")
	return nil
}
