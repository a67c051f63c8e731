package cli

import (
	"context"
	"fmt"
	"image"

	"github.com/aussiebroadwan/busfare/internal/scan"
	"github.com/aussiebroadwan/busfare/internal/session"
	"github.com/aussiebroadwan/busfare/pkg/faresdk"
	"github.com/spf13/cobra"
)

// validationPaths is the boarding validation page of each role that has one.
var validationPaths = map[session.Role]string{
	session.RoleDriver:    "/motorista/validar",
	session.RoleConductor: "/cobrador/validar",
}

func newBoardCmd(c *CLI) *cobra.Command {
	var (
		busID      string
		code       string
		continuous bool
		preview    bool
	)

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Scan a passenger's QR code and validate boarding",
		Long: "Open the camera, wait for one QR code and ask the backend to validate " +
			"it. With --code the camera is skipped. With --continuous the camera " +
			"reopens after each validation until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.application(ctx)
			if err != nil {
				return err
			}

			path, ok := validationPaths[a.Session.Current().Role]
			if !ok {
				path = validationPaths[session.RoleDriver]
			}
			if err := a.Guard.Require(ctx, path); err != nil {
				return err
			}

			validate := func(value string) error {
				res, err := a.Client.ValidateBoarding(ctx, faresdk.BoardingRequest{
					Code:  value,
					BusID: faresdk.ID(busID),
				})
				if err != nil {
					return err
				}
				printBoarding(c, res)
				return nil
			}

			if code != "" {
				return validate(code)
			}

			if preview {
				frames := 0
				a.Scanner.Preview = func(image.Image) {
					frames++
					fmt.Fprintf(c.err, "\rframes read: %d", frames)
				}
			}

			for {
				fmt.Fprintln(c.err, "Point the camera at the passenger's QR code...")
				value, err := scanOnce(ctx, a.Scanner)
				if err != nil {
					return err
				}
				if err := validate(value); err != nil {
					if !continuous {
						return err
					}
					fmt.Fprintf(c.err, "validation failed: %v\n", err)
				}
				if !continuous {
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&busID, "bus", "", "Bus the validation is for")
	cmd.Flags().StringVar(&code, "code", "", "Validate this code instead of scanning")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "Keep scanning after each validation")
	cmd.Flags().BoolVar(&preview, "preview", false, "Report captured frames on stderr")
	return cmd
}

// scanOnce runs one scan to completion and returns the decoded value.
func scanOnce(ctx context.Context, b *scan.Bridge) (string, error) {
	type result struct {
		value string
		err   error
	}
	ch := make(chan result, 1)

	s := b.Start(ctx,
		func(v string) { ch <- result{value: v} },
		func(err error) { ch <- result{err: err} },
	)
	<-s.Done()

	select {
	case r := <-ch:
		return r.value, r.err
	default:
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", context.Canceled
	}
}

func printBoarding(c *CLI, res *faresdk.BoardingResult) {
	verdict := "DENIED"
	if res.Approved {
		verdict = "APPROVED"
	}

	tw := newTable("Result", "Passenger", "Fare", "Balance", "Free fare", "Message")
	tw.AppendRow([]any{verdict, res.Passenger, reais(res.Fare), reais(res.Balance), yesNo(res.FreeFare), res.Message})
	printTable(c.out, tw)
}
