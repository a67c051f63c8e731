package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/busfare/internal/authz"
	"github.com/aussiebroadwan/busfare/pkg/cryptox"
	"github.com/aussiebroadwan/busfare/pkg/faresdk"
	"github.com/spf13/cobra"
)

func newLoginCmd(c *CLI) *cobra.Command {
	var creds faresdk.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with CPF and password",
		Long: "Log in with CPF and password. When --password is omitted it is read " +
			"from BUSFARE_PASSWORD or, failing that, from the first line of stdin.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.application(ctx)
			if err != nil {
				return err
			}

			if creds.Password == "" {
				creds.Password, err = c.readSecret("BUSFARE_PASSWORD", "Password: ")
				if err != nil {
					return err
				}
			}
			creds.CPF = onlyDigits(creds.CPF)

			profile, err := a.Session.Login(ctx, creds)
			if err != nil {
				if errors.Is(err, faresdk.ErrUnauthorized) || errors.Is(err, faresdk.ErrValidation) {
					return fmt.Errorf("login failed: invalid CPF or password")
				}
				return fmt.Errorf("login failed: %w", err)
			}

			role := a.Session.Current().Role
			fmt.Fprintf(c.out, "Logged in as %s (%s). Home: %s\n",
				displayName(profile), role, a.Authz.Policy().Home(role))
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.CPF, "cpf", "", "CPF, with or without punctuation")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Password")
	_ = cmd.MarkFlagRequired("cpf")
	return cmd
}

func newLogoutCmd(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.application(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(c *CLI) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.application(ctx)
			if err != nil {
				return err
			}

			cur := a.Session.Current()
			if !cur.Authenticated() {
				return fmt.Errorf("%w: not logged in", authz.ErrLoginRequired)
			}

			profile := cur.Profile
			if remote {
				p, err := a.Client.Me(ctx)
				if err != nil {
					return err
				}
				profile = *p
			}

			tw := newTable("Field", "Value")
			tw.AppendRow([]any{"Name", displayName(profile)})
			tw.AppendRow([]any{"CPF", profile.CPF})
			tw.AppendRow([]any{"Email", profile.Email})
			tw.AppendRow([]any{"Role", cur.Role})
			tw.AppendRow([]any{"Home", a.Authz.Policy().Home(cur.Role)})
			tw.AppendRow([]any{"Token", cryptox.Fingerprint(cur.Token)})
			if exp, ok := a.Session.TokenExpiry(); ok {
				tw.AppendRow([]any{"Token expires", exp.Local().Format(time.DateTime)})
			}
			printTable(c.out, tw)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Fetch the profile from the backend instead of the stored copy")
	return cmd
}

func newOpenCmd(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Show where navigating to a page would take you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.application(cmd.Context())
			if err != nil {
				return err
			}

			d := a.Guard.Check(args[0])
			switch d.Outcome {
			case authz.Allow:
				fmt.Fprintf(c.out, "%s: allowed\n", authz.NormalizePath(args[0]))
			default:
				fmt.Fprintf(c.out, "%s: %s -> %s\n", authz.NormalizePath(args[0]), d.Outcome, d.Location)
			}
			return nil
		},
	}
}

func (c *CLI) readSecret(envKey, prompt string) (string, error) {
	if v := os.Getenv(envKey); v != "" {
		return v, nil
	}

	fmt.Fprint(c.err, prompt)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func displayName(p faresdk.Profile) string {
	if p.Name != "" {
		return p.Name
	}
	if p.Email != "" {
		return p.Email
	}
	return p.CPF
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
