package main

import (
	"os"

	"github.com/Veolinan/triage/internal/cli"
	"github.com/Veolinan/triage/internal/logging"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Take the questionnaire interactively",
	Long: `Walks a respondent through stage selection, range selection and the
questionnaire of that partition, then submits the scored response.
Every step is persisted: pass --session to resume an interrupted run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonMode, _ := cmd.Flags().GetBool("json")
		debug, _ := cmd.Flags().GetBool("debug")

		eng, _, logger, cleanup, err := setup(cmd, cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer cleanup()
		if !debug {
			// Keep the questionnaire UI free of audit lines.
			logger = logging.NewNop()
		}

		opts := cli.RunOptions{JSON: jsonMode}
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.PatientID, _ = cmd.Flags().GetString("patient")
		opts.PatientName, _ = cmd.Flags().GetString("name")
		return cli.Run(cmd.Context(), eng, opts, os.Stdin, os.Stdout, logger)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("session", "", "Session ID to create or resume")
	runCmd.Flags().String("patient", "", "Patient identifier stored with the response")
	runCmd.Flags().String("name", "", "Patient display name")
	runCmd.Flags().Bool("json", false, "Speak JSON Lines on stdin/stdout instead of text")
}
