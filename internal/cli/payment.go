package cli

import (
	"fmt"
	"os"

	"github.com/aussiebroadwan/busfare/internal/payment"
	"github.com/aussiebroadwan/busfare/pkg/faresdk"
	"github.com/aussiebroadwan/busfare/pkg/poll"
	"github.com/aussiebroadwan/busfare/pkg/qrterm"
	"github.com/spf13/cobra"
)

const (
	topUpPath  = "/recarga"
	walletPath = "/carteira"
)

func newTopUpCmd(c *CLI) *cobra.Command {
	var (
		pngFile string
		noQR    bool
		invert  bool
	)

	cmd := &cobra.Command{
		Use:   "topup <amount>",
		Short: "Top up the wallet with a PIX payment",
		Long: "Create a PIX payment for the amount in reais (e.g. 10,50), show its " +
			"QR code and wait until it is approved, fails, or polling gives up.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.page(ctx, topUpPath)
			if err != nil {
				return err
			}

			cb := payment.Callbacks{
				OnApproved: func(p faresdk.PaymentIntent) {
					fmt.Fprintln(c.out, "Payment approved. Your balance will reflect it shortly.")
				},
				OnFailed: func(p faresdk.PaymentIntent) {
					fmt.Fprintf(c.out, "Payment %s. No money was taken.\n", p.Status)
				},
				OnTimeout: func(p faresdk.PaymentIntent) {
					fmt.Fprintln(c.out, "Stopped checking automatically. If you paid, check `busfare wallet` in a moment.")
				},
			}

			intent, wt, err := a.Payments.TopUp(ctx, args[0], cb)
			if err != nil {
				return err
			}

			code := intent.DisplayCode()
			if code != "" && !noQR {
				if err := qrterm.Render(c.out, code, qrterm.Options{Invert: invert}); err != nil {
					return err
				}
			}
			if intent.CopyPaste != "" {
				fmt.Fprintf(c.out, "PIX copy and paste:\n%s\n", intent.CopyPaste)
			}
			if pngFile != "" && code != "" {
				if err := writeQRFile(pngFile, code); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "QR code saved to %s\n", pngFile)
			}
			fmt.Fprintln(c.out, "Waiting for payment...")

			select {
			case <-wt.Done():
			case <-ctx.Done():
				wt.Stop()
				<-wt.Done()
				return ctx.Err()
			}

			outcome, status := wt.Result()
			if outcome == poll.Terminal && status != faresdk.PaymentApproved {
				return fmt.Errorf("payment %s", status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pngFile, "png", "", "Also write the QR code to this PNG file")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "Don't draw the QR code in the terminal")
	cmd.Flags().BoolVar(&invert, "invert", false, "Invert the terminal QR code for light-on-dark themes")
	return cmd
}

func writeQRFile(path, code string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := qrterm.WritePNG(f, code, 512); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func newWalletCmd(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "wallet",
		Short: "Show the wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.page(ctx, walletPath)
			if err != nil {
				return err
			}

			w, err := a.Client.Wallet(ctx)
			if err != nil {
				return err
			}

			tw := newTable("Balance", "Free fare")
			tw.AppendRow([]any{reais(w.Balance), yesNo(w.FreeFare)})
			printTable(c.out, tw)
			return nil
		},
	}
}
