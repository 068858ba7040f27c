package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Veolinan/triage/internal/cli"
	"github.com/Veolinan/triage/internal/presentation/tui"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/preview"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:       "preview {tree|paths|mermaid|table}",
	Short:     "Preview a partition's question graph",
	Long:      `Renders a stored partition as an expanded tree (JSON), every root-to-end path with its projected zone, a Mermaid flowchart or a Markdown table.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"tree", "paths", "mermaid", "table"},
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, _, cleanup, err := setup(cmd, cli.EngineOptions{})
		if err != nil {
			return err
		}
		defer cleanup()

		p := partitionFrom(cmd)
		if err := eng.Catalog().Validate(p); err != nil {
			return err
		}
		nodes, err := eng.Nodes().FetchNodes(cmd.Context(), p)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		render := tui.NewRenderer(os.Stdout)
		if out != os.Stdout {
			render = func(md string) (string, error) { return md, nil }
		}

		switch args[0] {
		case "tree":
			tree, err := preview.BuildTree(nodes)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(tree)
		case "paths":
			paths, err := eng.Paths(cmd.Context(), p)
			if err != nil {
				return err
			}
			md, err := render(preview.PathsMarkdown(paths))
			if err != nil {
				return err
			}
			fmt.Fprint(out, md)
			outcomes := preview.Outcomes(paths)
			for _, class := range []domain.Classification{domain.ClassLowRisk, domain.ClassAlertZone, domain.ClassDangerZone} {
				fmt.Fprintf(out, "%s: %d\n", tui.Zone(class), outcomes[class])
			}
		case "mermaid":
			fmt.Fprint(out, preview.Mermaid(nodes, nil))
		case "table":
			md, err := render(preview.Table(nodes))
			if err != nil {
				return err
			}
			fmt.Fprint(out, md)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	partitionFlags(previewCmd)
}
