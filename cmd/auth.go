package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/marcus/todos/internal/config"
	"github.com/marcus/todos/internal/feature"
	"github.com/marcus/todos/internal/models"
	"github.com/marcus/todos/internal/output"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errFieldRequired = errors.New("required")

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Sign in, sign out and show the current session",
	GroupID: "session",
}

var authAnonymousCmd = &cobra.Command{
	Use:   "anonymous",
	Short: "Sign in as a new anonymous user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSignIn(feature.SignInRequested{Method: feature.MethodAnonymous}, "", "")
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")
		email, password, err := readCredentials(cmd.InOrStdin(), "Sign in", email, fromStdin)
		if err != nil {
			return err
		}
		return runSignIn(feature.SignInRequested{Method: feature.MethodPassword}, email, password)
	},
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account with email and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")
		email, password, err := readCredentials(cmd.InOrStdin(), "Create account", email, fromStdin)
		if err != nil {
			return err
		}
		return runSignIn(feature.SignInRequested{Method: feature.MethodSignUp}, email, password)
	},
}

var authCredentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Sign in with an identity token from an external provider",
	Long: `Sign in with an ID token minted by the configured external provider.

The token's nonce claim must be the sha256 of --nonce. Use "todos nonce" to
generate a raw nonce and the hash to hand to the provider.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idToken, _ := cmd.Flags().GetString("id-token")
		nonce, _ := cmd.Flags().GetString("nonce")
		if strings.TrimSpace(idToken) == "" || strings.TrimSpace(nonce) == "" {
			return errors.New("--id-token and --nonce are required")
		}
		req := feature.SignInRequested{
			Method:     feature.MethodCredential,
			Credential: models.ExternalCredential{IDToken: idToken, RawNonce: nonce},
		}
		return runSignIn(req, "", "")
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and revoke the session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := a.context()
		defer cancel()

		session, err := a.session(ctx)
		if errors.Is(err, errNotSignedIn) {
			// An expired sign in is still on disk.
			if err := a.saveSession(nil); err != nil {
				return err
			}
			output.Info("Not signed in.")
			return nil
		}
		if err != nil {
			return err
		}

		st, stop := a.run(ctx)
		defer stop()
		st.Dispatch(feature.Restore{Session: session})
		if _, err := st.Send(ctx, feature.SignOutConfirmed{}); err != nil {
			return err
		}
		if _, err := st.WaitFor(ctx, func(s feature.SessionState) bool {
			return !s.SignOutPending
		}); err != nil {
			return fmt.Errorf("waiting for sign out: %w", err)
		}

		// The local session goes regardless of what the server said.
		if err := a.saveSession(nil); err != nil {
			output.Error("logout: %v", err)
			return err
		}
		if s := st.State(); s.SignOutErr != nil {
			output.Warning("server did not confirm sign out: %s", s.SignOutErr.Message())
		}
		output.Success("Signed out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := a.context()
		defer cancel()

		session, err := a.session(ctx)
		if errors.Is(err, errNotSignedIn) {
			// An expired sign in is still on disk.
			if err := a.saveSession(nil); err != nil {
				return err
			}
			output.Info("Not signed in.")
			return nil
		}
		if err != nil {
			output.Error("%v", err)
			return err
		}

		source := "stored sign in"
		if a.env.Token != "" {
			source = "TODOS_TOKEN"
		}
		output.Info("User:   %s", session.DisplayName())
		output.Info("ID:     %s", session.UserID)
		output.Info("Server: %s", a.server)
		output.Info("Token:  %s", tokenPrefix(session.Token))
		output.Info("Source: %s", source)
		if creds, _ := config.LoadAuth(); creds != nil && creds.ExpiresAt != "" && a.env.Token == "" {
			output.Info("Expires: %s", creds.ExpiresAt)
		}
		return nil
	},
}

func runSignIn(req feature.SignInRequested, email, password string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, cancel := a.context()
	defer cancel()

	st, stop := a.run(ctx)
	defer stop()

	st.Dispatch(feature.EmailChanged{Value: email})
	st.Dispatch(feature.PasswordChanged{Value: password})
	if _, err := st.Send(ctx, req); err != nil {
		return err
	}
	s, err := st.WaitFor(ctx, func(s feature.SessionState) bool {
		return s.Authed != nil || !s.Unauth.Pending
	})
	if err != nil {
		return fmt.Errorf("waiting for sign in: %w", err)
	}
	if s.Authed == nil {
		if s.Unauth.Err != nil {
			output.Error("%s", s.Unauth.Err.Message())
			return s.Unauth.Err
		}
		return errors.New("sign in did not complete")
	}

	session := s.Authed.Session
	if err := a.saveSession(&session); err != nil {
		output.Error("save credentials: %v", err)
		return err
	}
	output.Success("Signed in as %s", session.DisplayName())
	return nil
}

// readCredentials asks for whatever email and password are missing: a form
// on a terminal, otherwise one line of in for the password.
func readCredentials(in io.Reader, title, email string, fromStdin bool) (string, string, error) {
	var password string
	f, isFile := in.(*os.File)
	interactive := isFile && term.IsTerminal(int(f.Fd()))

	switch {
	case fromStdin || !interactive:
		if email == "" {
			return "", "", errors.New("--email is required when the password comes from stdin")
		}
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")

	case email != "":
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		password = string(b)

	default:
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&email).
				Placeholder("you@example.com").
				Validate(required),
			huh.NewInput().
				Title("Password").
				Value(&password).
				EchoMode(huh.EchoModePassword).
				Validate(required),
		).Title(title))
		form.WithTheme(huh.ThemeDracula())
		if err := form.Run(); err != nil {
			return "", "", err
		}
	}

	if password == "" {
		return "", "", errors.New("password required")
	}
	return strings.TrimSpace(email), password, nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errFieldRequired
	}
	return nil
}

func tokenPrefix(token string) string {
	if len(token) > 12 {
		return token[:12] + "..."
	}
	return token
}

func init() {
	for _, c := range []*cobra.Command{authLoginCmd, authSignupCmd} {
		c.Flags().String("email", "", "account email")
		c.Flags().Bool("password-stdin", false, "read the password from stdin")
	}
	authCredentialCmd.Flags().String("id-token", "", "ID token from the provider")
	authCredentialCmd.Flags().String("nonce", "", "raw nonce whose sha256 is in the token")

	authCmd.AddCommand(authAnonymousCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authSignupCmd)
	authCmd.AddCommand(authCredentialCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
