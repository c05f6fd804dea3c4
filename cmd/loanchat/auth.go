package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/auth"
)

// readLine prompts on out and reads one line from in.
func readLine(in *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd(getApp func() *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			ctx := cmd.Context()
			a.auth.Resolve(ctx)

			var err error
			in := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				if username, err = readLine(in, cmd.OutOrStdout(), "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = readLine(in, cmd.OutOrStdout(), "Password: "); err != nil {
					return err
				}
			}

			user, err := a.auth.Login(ctx, username, password)
			if err != nil {
				var te *apperr.TransportError
				if errors.As(err, &te) && te.Unauthorized() {
					return fmt.Errorf("login failed: %s", te.Body)
				}
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", user.FullName, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			getApp().auth.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap := getApp().auth.Resolve(cmd.Context())
			if !snap.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			u := snap.User
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>", u.FullName, u.Email)
			if u.Role != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " [%s]", u.Role)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newSignupCmd(getApp func() *app) *cobra.Command {
	var req auth.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if req.Password == "" {
				if req.Password, err = readLine(bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout(), "Password: "); err != nil {
					return err
				}
			}
			user, err := getApp().auth.Signup(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("signup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s. Run `loanchat login -u %s` to sign in.\n", user.Email, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.Password, "password", "", "password, at least 8 characters (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
