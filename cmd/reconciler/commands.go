package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
	"github.com/eshaffer321/receipt-reconciler/internal/cli"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/report"
)

func serveCmd() *cobra.Command {
	var flags cli.ServeFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, "api", func(ctx context.Context, app *cli.App) error {
				return cli.RunServe(ctx, app, flags)
			})
		},
	}

	cmd.Flags().StringVar(&flags.Addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "gin debug logging")
	return cmd
}

func attemptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attempt <receipt-id>",
		Short: "Try to auto-match one receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "attempt", func(ctx context.Context, app *cli.App) error {
				result, err := app.Reconciler.Attempt(ctx, args[0])
				if err != nil {
					return err
				}
				cli.PrintAttempt(cmd.OutOrStdout(), args[0], result)
				return nil
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	var statementID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Attempt every unmatched receipt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, "reconcile", func(ctx context.Context, app *cli.App) error {
				opts := service.ReconcileOptions{StatementID: statementID}
				if f, ok := cmd.ErrOrStderr().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
					opts.Progress = cli.NewProgress(f, "Reconciling")
				}

				summary, err := app.Reconciler.Reconcile(ctx, opts)
				if err != nil {
					return err
				}
				cli.PrintReconcileSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statementID, "statement", "", "limit to one statement")
	return cmd
}

func trainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Retrain the learned confidence model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, "train", func(ctx context.Context, app *cli.App) error {
				result, err := app.Reconciler.Train(ctx)
				if err != nil {
					return err
				}
				cli.PrintTrainResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func aliasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage merchant aliases",
	}

	var regex bool
	add := &cobra.Command{
		Use:   "add <pattern> <canonical>",
		Short: "Map a raw merchant pattern to a canonical name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "alias", func(ctx context.Context, app *cli.App) error {
				alias := merchant.Alias{Pattern: args[0], Canonical: args[1], Regex: regex}
				if err := app.Reconciler.AddAlias(ctx, alias); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added alias %q -> %q\n", alias.Pattern, alias.Canonical)
				return nil
			})
		},
	}
	add.Flags().BoolVar(&regex, "regex", false, "treat pattern as a regular expression")

	cmd.AddCommand(add)
	return cmd
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <merchant text>...",
		Short: "Show how a merchant name normalizes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "normalize", func(_ context.Context, app *cli.App) error {
				input := strings.Join(args, " ")
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", input, app.Reconciler.Normalize(input))
				return nil
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		statementID string
		out         string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write suggested matches to CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, "export", func(ctx context.Context, app *cli.App) error {
				set, err := app.Reconciler.GetCandidates(ctx, service.CandidateQuery{
					StatementID:    statementID,
					CrossStatement: app.Config.Matching.AllowCrossStatement,
				})
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", out, err)
					}
					defer f.Close()
					w = f
				}

				if err := report.WriteCandidates(w, set.Pairs); err != nil {
					return err
				}
				if w != cmd.OutOrStdout() {
					fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d candidates to %s\n", len(set.Pairs), out)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statementID, "statement", "", "limit to one statement")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func importChargesCmd() *cobra.Command {
	var statementID string

	cmd := &cobra.Command{
		Use:   "import-charges <file.csv>",
		Short: "Load statement charges from CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "import", func(ctx context.Context, app *cli.App) error {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()

				charges, err := report.ReadCharges(f, statementID)
				if err != nil {
					return err
				}

				for _, c := range charges {
					if err := app.Reconciler.AddCharge(ctx, c); err != nil {
						return fmt.Errorf("failed to add charge %s: %w", c.ID, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d charges\n", len(charges))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statementID, "statement", "", "statement the charges belong to")
	_ = cmd.MarkFlagRequired("statement")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show reconciliation counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, "stats", func(ctx context.Context, app *cli.App) error {
				stats, err := app.Reconciler.Stats(ctx)
				if err != nil {
					return err
				}
				cli.PrintStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}
