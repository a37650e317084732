package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/punch/internal/gateway"
	"github.com/Tiliavir/punch/internal/storage"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the attendance server",
	Long: `Log in with your username and password. The refreshable access token is
stored in ~/.punch/auth/token.json and renewed automatically.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored access token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (prompted when omitted)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, _, base, err := loadBase()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	in := bufio.NewReader(os.Stdin)
	if loginUsername == "" {
		if loginUsername, err = prompt(in, os.Stdout, "Username: "); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if loginPassword == "" {
		if loginPassword, err = prompt(in, os.Stdout, "Password: "); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	store := gateway.NewTokenStore(base)
	oauthCfg := gateway.OAuthConfig(cfg.API.TokenURL, cfg.API.ClientID)
	tok, err := gateway.Login(context.Background(), oauthCfg, store, loginUsername, loginPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
		os.Exit(1)
	}

	userID := cfg.UserID
	if userID == "" {
		if userID, err = gateway.UserIDFromToken(tok); err != nil {
			fmt.Fprintln(os.Stderr, "Warning: logged in, but the token carries no user id; set user_id in the config.")
			return nil
		}
	}
	fmt.Printf("Logged in as %s.\n", userID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	base, err := storage.BaseDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := gateway.NewTokenStore(base).Remove(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println("Logged out.")
	return nil
}

// prompt writes label to out and reads one trimmed line from in.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
