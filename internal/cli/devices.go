package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessro/reprise/internal/spotify/client"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List Spotify Connect devices",
	Long: `Lists the Spotify Connect devices visible to the signed-in account.
Use an id from this list as device.id with the webapi backend.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	logger, err := newLogger()
	if err != nil {
		return err
	}
	storage, err := openStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	tokens := newTokenStore(storage, logger)
	api := client.New(tokens, client.WithBaseURL(cfg.Spotify.APIBaseURL), client.WithLogger(logger))
	devices, err := api.GetDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to get devices: %w", err)
	}

	if JSONOutput() {
		if devices == nil {
			devices = []client.Device{}
		}
		return printJSON(devices)
	}
	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	table := NewTableWriter(os.Stdout, "", "NAME", "TYPE", "ID")
	for _, d := range devices {
		name := d.Name
		if d.Name == cfg.Device.Name || d.ID == cfg.Device.ID {
			name = titleStyle.Render(name)
		}
		table.Row(StatusIcon(d.IsActive), name, d.Type, d.ID)
	}
	table.Flush()
	return nil
}
