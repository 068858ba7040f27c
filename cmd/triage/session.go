package main

import (
	"encoding/json"
	"fmt"

	"github.com/Veolinan/triage/internal/cli"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted questionnaire sessions",
	Long:  `List, inspect and remove sessions kept by the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, cleanup, err := setup(cmd, cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer cleanup()

		ids, err := eng.Sessions().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		fmt.Fprintln(out, "Sessions:")
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the state of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, cleanup, err := setup(cmd, cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer cleanup()

		s, err := eng.Session(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		s.Nodes = nil
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, cleanup, err := setup(cmd, cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer cleanup()

		for _, id := range args {
			if err := eng.Sessions().Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("error removing session %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd, sessionInspectCmd, sessionRmCmd)
}
