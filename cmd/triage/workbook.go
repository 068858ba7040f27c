package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veolinan/triage/internal/auth"
	"github.com/Veolinan/triage/internal/cli"
	"github.com/Veolinan/triage/pkg/authoring"
	"github.com/spf13/cobra"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write the spreadsheet template for authoring a partition",
	Long: `Writes the questions and choices sheets as a zip archive (--out) or as two
CSV files (--dir). With --stage and --range the stored partition is exported
instead of a blank template.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		dir, _ := cmd.Flags().GetString("dir")
		if (out == "") == (dir == "") {
			return errors.New("exactly one of --out or --dir is required")
		}

		wb := authoring.Template()
		if p := partitionFrom(cmd); !p.IsZero() {
			eng, _, _, cleanup, err := setup(cmd, cli.EngineOptions{})
			if err != nil {
				return err
			}
			defer cleanup()
			d, err := eng.OpenDraft(cmd.Context(), p)
			if err != nil {
				return err
			}
			wb = authoring.ExportTable(d.Nodes)
		}

		if dir != "" {
			if err := wb.WriteCSV(dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s to %s\n", authoring.QuestionsSheet+".csv", authoring.ChoicesSheet+".csv", dir)
			return nil
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := wb.WriteZip(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <workbook.zip | questions.csv choices.csv>",
	Short: "Replace a partition with the contents of a filled template",
	Long: `Reads a workbook written by 'triage template', validates it as a draft and
publishes it as the named partition. Nothing is written when validation fails.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		operator, _ := cmd.Flags().GetString("operator")
		category, _ := cmd.Flags().GetString("category")

		qs, cs, err := readWorkbook(args)
		if err != nil {
			return err
		}
		d, err := authoring.ImportTable(partitionFrom(cmd), category, qs, cs)
		if err != nil {
			return err
		}

		eng, _, _, cleanup, err := setup(cmd, cli.EngineOptions{Identity: auth.StaticIdentity(operator)})
		if err != nil {
			return err
		}
		defer cleanup()

		if err := eng.SaveDraft(cmd.Context(), d); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d questions into %s\n", len(d.Nodes), d.Partition)
		return nil
	},
}

func readWorkbook(args []string) (questionRows, choiceRows []map[string]string, err error) {
	if len(args) == 2 {
		q, err := os.Open(args[0])
		if err != nil {
			return nil, nil, err
		}
		defer q.Close()
		c, err := os.Open(args[1])
		if err != nil {
			return nil, nil, err
		}
		defer c.Close()
		return authoring.ReadCSV(q, c)
	}

	if !strings.EqualFold(filepath.Ext(args[0]), ".zip") {
		return nil, nil, fmt.Errorf("%s: expected a .zip workbook or two CSV files", args[0])
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	return authoring.ReadZip(f, info.Size())
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.Flags().String("out", "", "Zip archive to write")
	templateCmd.Flags().String("dir", "", "Directory to write the CSV sheets into")
	templateCmd.Flags().String("stage", "", "Export this stage type instead of a blank template")
	templateCmd.Flags().String("range", "", "Export this stage range instead of a blank template")

	rootCmd.AddCommand(importCmd)
	partitionFlags(importCmd)
	importCmd.Flags().String("category", "", "Category for every imported question")
	importCmd.Flags().String("operator", "", "Operator ID recorded on the saved questions")
	_ = importCmd.MarkFlagRequired("operator")
}
