package cli

import (
	"fmt"
	"strings"

	"github.com/aussiebroadwan/busfare/internal/authz"
	"github.com/spf13/cobra"
)

func newPolicyCmd(c *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the page access policy",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the policy and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}

			p, err := authz.LoadPolicy(cfg.PolicyFile)
			if err != nil {
				return err
			}

			tw := newTable("Role", "Home", "Paths")
			for _, role := range p.SortedRoles() {
				rule := p.Roles[role]
				tw.AppendRow([]any{role, rule.Home, strings.Join(rule.Paths, " ")})
			}
			tw.AppendFooter([]any{"public", p.LoginPath, strings.Join(p.Public, " ")})
			printTable(c.out, tw)

			if err := p.Validate(); err != nil {
				return fmt.Errorf("policy has problems:\n%w", err)
			}
			fmt.Fprintln(c.out, "Policy OK.")
			return nil
		},
	}

	cmd.AddCommand(check)
	return cmd
}
