package main

import (
	"errors"
	"fmt"

	"github.com/Veolinan/triage/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every partition of the question bank",
	Long: `Runs the authoring checks (structure, a single root, reachability, cycles,
unique orders and partition membership) over every stored partition.
With --watch the bank is revalidated after each change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, logger, cleanup, err := setup(cmd, cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		reports, err := cli.ValidateBank(cmd.Context(), eng)
		if err != nil {
			return err
		}
		ok := cli.PrintReports(out, reports)

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			ctx := cli.NewSignalContext(cmd.Context())
			defer ctx.Cancel()
			fmt.Fprintln(out, ">>> Waiting for changes...")
			return cli.WatchBank(ctx, eng, logger, func(reports []cli.PartitionReport, err error) {
				if err != nil {
					fmt.Fprintf(out, "Validation failed: %v\n", err)
					return
				}
				cli.PrintReports(out, reports)
			})
		}

		if !ok {
			return errors.New("question bank has issues")
		}
		fmt.Fprintln(out, "Question bank is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("watch", false, "Revalidate on every bank change")
}
