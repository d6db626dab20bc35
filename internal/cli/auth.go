package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/tessro/reprise/internal/browser"
	"github.com/tessro/reprise/internal/snapshot"
	"github.com/tessro/reprise/internal/spotify/auth"
	"github.com/tessro/reprise/internal/spotify/client"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Spotify authentication",
	Long:  `Commands for managing Spotify OAuth authentication.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Spotify",
	Long:  `Opens a browser to authenticate with Spotify using OAuth PKCE flow.`,
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored Spotify credentials",
	Long:  `Removes the stored Spotify tokens and the saved playback snapshot.`,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  `Shows the current Spotify authentication status.`,
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	if cfg.Spotify.ClientID == "" {
		return fmt.Errorf("spotify.client_id not configured. Set it in ~/.repriserc or via REPRISE_SPOTIFY_CLIENT_ID")
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}

	pkce, err := auth.NewPKCE()
	if err != nil {
		return fmt.Errorf("failed to generate PKCE: %w", err)
	}

	oc := oauthConfig()
	callbackServer, err := auth.NewCallbackServer(oc.RedirectURI, pkce.State)
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	callbackServer.Start()
	defer func() { _ = callbackServer.Shutdown(context.Background()) }()

	authURL := oc.BuildAuthURL(pkce)

	fmt.Println("Opening browser for Spotify authentication...")
	if err := browser.Open(authURL); err != nil {
		fmt.Println("Could not open browser automatically.")
		if clipboard.WriteAll(authURL) == nil {
			fmt.Println("The login URL has been copied to your clipboard.")
		}
		fmt.Printf("Please open this URL in your browser:\n\n%s\n\n", authURL)
	}

	fmt.Println("Waiting for authentication...")
	ctx, cancel := context.WithTimeout(commandContext(cmd), 5*time.Minute)
	defer cancel()

	result, err := callbackServer.Wait(ctx)
	if err != nil {
		return fmt.Errorf("authentication timed out: %w", err)
	}
	if result.Error != "" {
		return fmt.Errorf("authentication failed: %s", result.Error)
	}
	if result.State != pkce.State {
		return fmt.Errorf("state mismatch: possible CSRF attack")
	}

	fmt.Println("Exchanging code for tokens...")
	token, err := auth.ExchangeCode(ctx, oc, nil, result.Code, pkce.Verifier)
	if err != nil {
		return fmt.Errorf("failed to exchange code: %w", err)
	}

	storage, err := openStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	tokens := newTokenStore(storage, logger)
	if err := tokens.Save(ctx, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	api := client.New(tokens, client.WithBaseURL(cfg.Spotify.APIBaseURL), client.WithLogger(logger))
	user, err := api.GetCurrentUser(ctx)
	if err != nil {
		fmt.Println("Authentication successful! Token stored.")
		return nil
	}

	if JSONOutput() {
		return printJSON(map[string]any{
			"status":       "authenticated",
			"user_id":      user.ID,
			"display_name": user.DisplayName,
			"email":        user.Email,
			"product":      user.Product,
		})
	}
	fmt.Printf("Successfully authenticated as %s (%s)\n", user.DisplayName, user.Email)
	if user.Product != "premium" {
		fmt.Println(warnStyle.Render("Playback control requires a Spotify Premium account."))
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
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
	token, err := tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}
	if token == nil {
		if JSONOutput() {
			return printJSON(map[string]string{"status": "not_authenticated"})
		}
		fmt.Println("Not authenticated with Spotify.")
		return nil
	}

	// Invalidate also removes the linked playback snapshot.
	if err := tokens.Invalidate(ctx); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	if JSONOutput() {
		return printJSON(map[string]string{"status": "logged_out"})
	}
	fmt.Println("Logged out of Spotify.")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
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
	token, err := tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil {
		if JSONOutput() {
			return printJSON(map[string]any{"authenticated": false})
		}
		fmt.Println("Not authenticated with Spotify.")
		fmt.Println("Run 'reprise auth login' to authenticate.")
		return nil
	}

	snaps := snapshot.NewStore(storage, snapshot.WithStaleness(cfg.Session.StalenessWindow()))
	snap, _ := snaps.Peek(ctx)

	api := client.New(tokens, client.WithBaseURL(cfg.Spotify.APIBaseURL), client.WithLogger(logger))
	user, err := api.GetCurrentUser(ctx)
	if err != nil {
		if JSONOutput() {
			return printJSON(map[string]any{
				"authenticated": true,
				"expired":       true,
				"error":         err.Error(),
			})
		}
		fmt.Printf("Token may be expired or invalid: %v\n", err)
		fmt.Println("Run 'reprise auth login' to re-authenticate.")
		return nil
	}

	// The lookup may have refreshed the credential.
	if fresh, err := tokens.Load(ctx); err == nil && fresh != nil {
		token = fresh
	}

	if JSONOutput() {
		return printJSON(map[string]any{
			"authenticated": true,
			"expired":       false,
			"user_id":       user.ID,
			"display_name":  user.DisplayName,
			"email":         user.Email,
			"product":       user.Product,
			"expires_at":    token.ExpiresAt,
			"has_snapshot":  snap != nil,
		})
	}
	fmt.Printf("Authenticated as: %s (%s)\n", user.DisplayName, user.Email)
	fmt.Printf("Account type: %s\n", user.Product)
	fmt.Printf("Token expires: %s\n", token.ExpiresAt.Format(time.RFC3339))
	if snap != nil {
		fmt.Println(subtleStyle.Render("A playback snapshot is saved. Run 'reprise snapshot show' for details."))
	}
	return nil
}
