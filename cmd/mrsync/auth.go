package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mrsync/pkg/auth"
	"mrsync/pkg/config"
	"mrsync/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage GitLab access tokens",
	Long: `Manage stored GitLab access tokens, one per GitLab host.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (MRSYNC_GITLAB_TOKEN or GITLAB_TOKEN, read only)`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a GitLab access token",
	Example: `  # Token for gitlab.com
  mrsync auth login

  # Self-managed instance
  mrsync auth login --gitlab-url https://gitlab.example.com`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token for the GitLab host",
	RunE:  runLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List stored tokens",
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

func authHost() (string, string, error) {
	url := gitlabURL
	if url == "" {
		url = config.DefaultConfig().GitLab.URL
	}
	host, err := auth.HostFromURL(url)
	return url, host, err
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	url, host, err := authHost()
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	auth.ShowTokenGuide(cmd.OutOrStdout(), url)

	if existing, _ := manager.Retrieve(host); existing != nil {
		fmt.Printf("A token for %s already exists. Replace it? (y/N): ", host)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Username (optional): ")
	username, _ := reader.ReadString('\n')

	fmt.Print("Access token (hidden): ")
	token, err := readPassword()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if len(token) < 8 {
		return auth.ErrInvalidCredentials
	}

	cred := &auth.Credential{
		Host:         host,
		Username:     strings.TrimSpace(username),
		Token:        token,
		LastModified: time.Now(),
	}
	if err := manager.Store(cred); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	ui.PrintSuccess("Token stored for " + host)
	fmt.Println("\nNext:")
	fmt.Println("  $ mrsync sync --group <group/path>")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	_, host, err := authHost()
	if err != nil {
		return err
	}
	if err := manager.Delete(host); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	ui.PrintSuccess("Token removed for " + host)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	creds, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(creds) == 0 {
		ui.PrintInfo("No stored tokens", "Use 'mrsync auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Tokens")
	for _, c := range creds {
		s := auth.Sanitize(c)
		fmt.Printf("  %s\n", s.Host)
		if s.Username != "" {
			fmt.Printf("    Username: %s\n", s.Username)
		}
		fmt.Printf("    Token: %s\n", s.Token)
		if !s.LastModified.IsZero() {
			fmt.Printf("    Last Modified: %s\n", s.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func readPassword() (string, error) {
	b, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
