package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/devrank/pkg/auth"
	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
)

const (
	tokenFileName  = "github_token"
	tokenEnvVar    = "GITHUB_TOKEN"
	keyringService = "devrank"
	keyringUser    = "github_token"
)

var (
	authTokenFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "GitHub token to store instead of running the device flow",
	}

	clientIDFlag = &cli.StringFlag{
		Name:    "client-id",
		Usage:   "OAuth app client ID used by the device flow",
		Sources: cli.EnvVars("DEVRANK_GITHUB_CLIENT_ID"),
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Authenticate to GitHub and store the access token in the OS keychain",
		Action:          cmdAuth,
		Flags: []cli.Flag{
			authTokenFlag,
			clientIDFlag,
		},
	}
)

func cmdAuth(ctx context.Context, cmd *cli.Command) error {
	if token := strings.TrimSpace(cmd.String(authTokenFlag.Name)); token != "" {
		if err := saveGitHubToken(token); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
		fmt.Fprintln(writer(cmd), "Token saved")
		return nil
	}

	clientID := cmd.String(clientIDFlag.Name)
	if clientID == "" {
		return fmt.Errorf("%w: --token or --client-id", errMissingArg)
	}

	flow, err := auth.NewDeviceFlow(clientID)
	if err != nil {
		return err
	}

	code, err := flow.GetDeviceCode(ctx)
	if err != nil {
		return fmt.Errorf("getting device code: %w", err)
	}

	w := writer(cmd)
	fmt.Fprintf(w, "1). Copy this code: %s\n", code.UserCode)
	fmt.Fprintf(w, "2). Navigate to this URL in your browser to authenticate: %s\n", code.VerificationURL)
	fmt.Fprintln(w, "3). Waiting for authorization...")

	token, err := flow.WaitForToken(ctx, code)
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	if err = saveGitHubToken(token.AccessToken); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintln(w, "Token saved")
	return nil
}

func saveGitHubToken(token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return saveGitHubTokenFile(token)
	}

	// a keychain token replaces any file copy
	os.Remove(filepath.Join(getHomeDir(), tokenFileName))
	return nil
}

// getGitHubToken looks in the environment, the OS keychain and finally the
// token file. A file token is moved into the keychain when possible.
func getGitHubToken() (string, error) {
	if token := strings.TrimSpace(os.Getenv(tokenEnvVar)); token != "" {
		return token, nil
	}

	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain lookup failed", "error", err)
	}

	token, err = getGitHubTokenFile()
	if err != nil {
		return "", fmt.Errorf("no GitHub token found, run auth or set %s: %w", tokenEnvVar, err)
	}

	if migrateErr := keyring.Set(keyringService, keyringUser, token); migrateErr == nil {
		slog.Info("migrated token from file to OS keychain")
		os.Remove(filepath.Join(getHomeDir(), tokenFileName))
	}

	return token, nil
}

func saveGitHubTokenFile(token string) error {
	return os.WriteFile(filepath.Join(getHomeDir(), tokenFileName), []byte(token), 0600)
}

func getGitHubTokenFile() (string, error) {
	tokenPath := filepath.Join(getHomeDir(), tokenFileName)
	b, err := os.ReadFile(tokenPath)
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", tokenPath, err)
	}
	return strings.TrimSpace(string(b)), nil
}
