package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igevents/pkg/auth"
	"igevents/pkg/config"
	"igevents/pkg/instagram"
	"igevents/pkg/logger"
	"igevents/pkg/ui"
)

var loginVerify bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Instagram web sessions",
	Long: `Manage the browser sessions used by the fallback scraping tier.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file under the igevents config directory
  - IGEVENTS_SESSION_ID / IGEVENTS_CSRF_TOKEN environment variables (read only)

Never share your cookies or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [account]",
	Short: "Store the cookies of a logged-in Instagram session",
	Long: `Store the sessionid and csrftoken cookies of a browser session.

To get these values:
1. Log into Instagram in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies
4. Copy the sessionid and csrftoken values`,
	Example: `  # Interactive login
  igevents auth login

  # Login and check the session against Instagram
  igevents auth login myaccount --verify`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <account>",
	Short: "Remove a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Long:  `List stored sessions with masked cookie values. The first one is used when no --account is given.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().BoolVar(&loginVerify, "verify", false, "fetch the account's profile with the new session before storing it")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("initialize credential manager: %w", err)
	}

	var account string
	if len(args) > 0 {
		account = strings.TrimSpace(args[0])
	}

	reader := bufio.NewReader(os.Stdin)
	auth.WriteLoginGuide(os.Stdout)

	if account == "" {
		fmt.Print("Instagram account: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read account: %w", err)
		}
		account = strings.TrimSpace(input)
	}
	if account == "" {
		return errors.New("account is required")
	}

	if existing, _ := manager.Load(account); existing != nil {
		fmt.Printf("\nA session for '%s' already exists. Replace it? (y/N): ", account)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Println("\nEnter your cookie values (they will be hidden as you type):")
	fmt.Print("sessionid cookie value: ")
	sessionID, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("read session ID: %w", err)
	}
	fmt.Print("csrftoken cookie value: ")
	csrfToken, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("read CSRF token: %w", err)
	}
	fmt.Print("User Agent (press Enter for the default): ")
	userAgent, _ := reader.ReadString('\n')

	session := &auth.Session{
		Account:   account,
		SessionID: sessionID,
		CSRFToken: csrfToken,
		UserAgent: strings.TrimSpace(userAgent),
	}
	if err := session.Validate(); err != nil {
		return err
	}

	if loginVerify {
		if err := verifySession(cmd, session); err != nil {
			return err
		}
	}

	if err := manager.Save(session); err != nil {
		return err
	}

	masked := session.Masked()
	ui.PrintSuccess("Session stored for " + account)
	ui.PrintInfo("Session ID", masked.SessionID)
	ui.PrintInfo("CSRF Token", masked.CSRFToken)
	fmt.Println("\nUse it with:")
	fmt.Printf("  igevents scrape <username> --account %s\n", account)
	return nil
}

// verifySession fetches the account's own profile with session.
func verifySession(cmd *cobra.Command, session *auth.Session) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	if session.UserAgent == "" {
		session.UserAgent = cfg.Instagram.UserAgent
	}
	client := instagram.NewClient(cfg.Instagram.Timeout, session, logger.GetLogger())
	user, err := client.FetchProfile(cmd.Context(), session.Account)
	if err != nil {
		return fmt.Errorf("session check failed: %w", err)
	}
	ui.PrintInfo("Verified", fmt.Sprintf("%s (%s)", user.Username, user.ID))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess("Session removed: " + args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("initialize credential manager: %w", err)
	}

	sessions, err := manager.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		ui.PrintInfo("No stored sessions", "Use 'igevents auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Sessions")
	fmt.Println()
	for i, s := range sessions {
		m := s.Masked()
		fmt.Printf("%d. Account: %s\n", i+1, m.Account)
		fmt.Printf("   Session ID: %s\n", m.SessionID)
		fmt.Printf("   CSRF Token: %s\n", m.CSRFToken)
		if m.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", m.UserAgent)
		}
		if !m.SavedAt.IsZero() {
			fmt.Printf("   Saved: %s\n", m.SavedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

// readPassword reads a secret without echo when stdin is a terminal.
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
