package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Veolinan/triage/internal/auth"
	"github.com/Veolinan/triage/internal/cli"
	"github.com/Veolinan/triage/internal/presentation/tui"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/spf13/cobra"
)

var responsesCmd = &cobra.Command{
	Use:   "responses",
	Short: "List and review submitted responses",
}

var responsesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List responses, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := domain.ResponseFilter{}
		filter.PatientID, _ = cmd.Flags().GetString("patient")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			st, err := domain.ParseReviewStatus(v)
			if err != nil {
				return err
			}
			filter.Status = st
		}
		if v, _ := cmd.Flags().GetString("classification"); v != "" {
			filter.Classification = domain.Classification(v)
		}

		eng, _, _, cleanup, err := setup(cmd, cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer cleanup()

		records, err := eng.ListResponses(cmd.Context(), filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No responses found.")
			return nil
		}
		md, err := tui.NewRenderer(os.Stdout)(responsesTable(records))
		if err != nil {
			return err
		}
		fmt.Fprint(out, md)
		return nil
	},
}

func responsesTable(records []domain.ResponseRecord) string {
	var sb strings.Builder
	sb.WriteString("| ID | Patient | Partition | Zone | Condition | Status | Submitted |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, r := range records {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s |\n",
			r.ID, r.PatientID, r.Partition, r.Classification, r.SuggestedCondition, r.Status,
			r.SubmittedAt.Format("2006-01-02 15:04"))
	}
	return sb.String()
}

var responsesReviewCmd = &cobra.Command{
	Use:   "review <response-id> <flagged|booked|resolved>",
	Short: "Move a response through the follow-up workflow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := domain.ParseReviewStatus(args[1])
		if err != nil {
			return err
		}
		operator, _ := cmd.Flags().GetString("operator")

		eng, _, _, cleanup, err := setup(cmd, cli.EngineOptions{Identity: auth.StaticIdentity(operator)})
		if err != nil {
			return err
		}
		defer cleanup()

		rec, err := eng.Review(cmd.Context(), args[0], to)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Response %s is now %s (by %s)\n", rec.ID, rec.Status, rec.ReviewedBy)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(responsesCmd)
	responsesCmd.AddCommand(responsesListCmd, responsesReviewCmd)

	responsesListCmd.Flags().String("patient", "", "Only this patient's responses")
	responsesListCmd.Flags().String("status", "", "Only responses in this review status")
	responsesListCmd.Flags().String("classification", "", "Only this zone (\"Low Risk\", \"Alert Zone\", \"Danger Zone\")")
	responsesListCmd.Flags().Int("limit", 50, "Maximum number of responses")
	responsesListCmd.Flags().Bool("json", false, "Print JSON instead of a table")

	responsesReviewCmd.Flags().String("operator", "", "Operator ID recorded on the review")
	_ = responsesReviewCmd.MarkFlagRequired("operator")
}
