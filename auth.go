package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tonimelisma/orderdesk/internal/credential"
)

// errNotLoggedIn is returned by commands that need a stored session.
var errNotLoggedIn = errors.New("not logged in, run 'orderdesk login' first")

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the order service",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}

	cmd.Flags().StringP("username", "u", "", "username (prompted when omitted)")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())
	in := bufio.NewReader(cmd.InOrStdin())

	username, _ := cmd.Flags().GetString("username")
	if username == "" {
		fmt.Fprint(cc.Stderr, "Username: ")

		line, err := readLine(in)
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}

		username = line
	}

	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	password, err := promptPassword(cc, cmd.InOrStdin(), in, fromStdin)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	s := cc.newSession()
	if _, err := s.client.Login(cmd.Context(), username, password); err != nil {
		return err
	}

	cc.Statusf("Logged in as %s.\n", username)

	return nil
}

// promptPassword reads the password without echo from a terminal, or as one
// line from a pipe.
func promptPassword(cc *CLIContext, raw io.Reader, in *bufio.Reader, fromStdin bool) (string, error) {
	f, isFile := raw.(*os.File)
	if fromStdin || !isFile || !term.IsTerminal(int(f.Fd())) {
		return readLine(in)
	}

	fmt.Fprint(cc.Stderr, "Password: ")
	pw, err := readPassword(int(f.Fd()))
	fmt.Fprintln(cc.Stderr)

	if err != nil {
		return "", err
	}

	return string(pw), nil
}

// readLine reads one line, accepting a final line without a newline.
func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())

	s := cc.newSession()
	if _, ok := s.store.Get(); !ok {
		cc.Statusf("Not logged in.\n")
		return nil
	}

	s.client.Logout()
	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Username  string     `json:"username"`
	APIURL    string     `json:"api_url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())

	s := cc.newSession()

	token, ok := s.store.Get()
	if !ok {
		return errNotLoggedIn
	}

	user, err := s.client.Me(cmd.Context())
	if err != nil {
		return err
	}

	out := whoamiOutput{Username: user.Username, APIURL: s.client.BaseURL()}

	// Claims are display-only; an opaque token simply has none.
	if claims, err := credential.ParseClaims(token); err == nil && !claims.ExpiresAt.IsZero() {
		out.ExpiresAt = &claims.ExpiresAt
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	fmt.Fprintf(cc.Stdout, "User:    %s\n", out.Username)
	fmt.Fprintf(cc.Stdout, "Service: %s\n", out.APIURL)

	if meta := s.store.Meta(); meta.APIURL != "" && meta.APIURL != out.APIURL {
		fmt.Fprintf(cc.Stdout, "Signed in against: %s\n", meta.APIURL)
	}

	if out.ExpiresAt != nil {
		fmt.Fprintf(cc.Stdout, "Expires: %s\n", out.ExpiresAt.Local().Format(time.RFC1123))
	}

	return nil
}
