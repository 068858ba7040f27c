package authoring

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Sheet names of the interchange workbook.
const (
	QuestionsSheet = "questions"
	ChoicesSheet   = "choices"
)

var (
	questionHeader = []string{"order", "isRoot", "text", "category", "evaluatedCondition"}
	choiceHeader   = []string{"questionOrder", "label", "leadsTo", "flag", "weight", "riskLevel"}
)

// questionRow is one line of the questions sheet.
type questionRow struct {
	Order              int    `mapstructure:"order"`
	IsRoot             string `mapstructure:"isRoot"`
	Text               string `mapstructure:"text"`
	Category           string `mapstructure:"category"`
	EvaluatedCondition string `mapstructure:"evaluatedCondition"`
}

// choiceRow is one line of the choices sheet. LeadsTo is a question order.
type choiceRow struct {
	QuestionOrder int    `mapstructure:"questionOrder"`
	Label         string `mapstructure:"label"`
	LeadsTo       string `mapstructure:"leadsTo"`
	Flag          string `mapstructure:"flag"`
	Weight        string `mapstructure:"weight"`
	RiskLevel     string `mapstructure:"riskLevel"`
}

func decodeRow(row map[string]string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	trimmed := make(map[string]string, len(row))
	for k, v := range row {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		trimmed[strings.TrimSpace(k)] = v
	}
	return dec.Decode(trimmed)
}

func parseRoot(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "x":
		return true
	}
	return false
}

func splitFlags(s string) domain.Flags {
	var out domain.Flags
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' }) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ImportTable builds a draft from spreadsheet rows. Questions are keyed by
// their order column; every question gets a fresh stable ID and choice
// leadsTo values (orders) are translated to those IDs. A category given as
// argument applies to rows that leave it empty.
func ImportTable(partition domain.Partition, category string, questionRows, choiceRows []map[string]string) (*Draft, error) {
	d := NewDraft(partition, category)

	questions := make([]questionRow, 0, len(questionRows))
	for i, row := range questionRows {
		var q questionRow
		if err := decodeRow(row, &q); err != nil {
			return nil, fmt.Errorf("questions row %d: %w", i+2, err)
		}
		if q.Order <= 0 {
			return nil, fmt.Errorf("questions row %d: order must be a positive number", i+2)
		}
		questions = append(questions, q)
	}
	slices.SortStableFunc(questions, func(a, b questionRow) int { return a.Order - b.Order })

	idByOrder := make(map[int]string, len(questions))
	for _, q := range questions {
		if _, dup := idByOrder[q.Order]; dup {
			return nil, fmt.Errorf("questions: order %d appears twice", q.Order)
		}
		id := d.newID()
		idByOrder[q.Order] = id
		cat := q.Category
		if cat == "" {
			cat = category
		}
		if d.Category == "" {
			d.Category = cat
		}
		d.Nodes = append(d.Nodes, domain.QuestionNode{
			ID:                 id,
			Order:              q.Order,
			IsRoot:             parseRoot(q.IsRoot),
			Text:               q.Text,
			StageType:          partition.StageType,
			StageRange:         partition.StageRange,
			Category:           cat,
			EvaluatedCondition: q.EvaluatedCondition,
		})
	}

	for i, row := range choiceRows {
		var c choiceRow
		if err := decodeRow(row, &c); err != nil {
			return nil, fmt.Errorf("choices row %d: %w", i+2, err)
		}
		owner, ok := idByOrder[c.QuestionOrder]
		if !ok {
			return nil, fmt.Errorf("choices row %d: no question with order %d", i+2, c.QuestionOrder)
		}
		choice := domain.Choice{
			Label:     c.Label,
			Flags:     splitFlags(c.Flag),
			RiskLevel: domain.RiskLevel(strings.ToLower(c.RiskLevel)),
		}
		if c.LeadsTo != "" {
			order, err := strconv.Atoi(c.LeadsTo)
			if err != nil {
				return nil, fmt.Errorf("choices row %d: leadsTo %q is not a question order", i+2, c.LeadsTo)
			}
			target, ok := idByOrder[order]
			if !ok {
				// Kept verbatim so ValidateAll reports the dangling edge.
				target = c.LeadsTo
			}
			choice.LeadsTo = target
		}
		if c.Weight != "" {
			w, err := strconv.ParseFloat(c.Weight, 64)
			if err != nil {
				return nil, fmt.Errorf("choices row %d: weight %q is not a number", i+2, c.Weight)
			}
			choice.Weight = &w
		}
		qi := d.IndexOf(owner)
		d.Nodes[qi].Choices = append(d.Nodes[qi].Choices, choice)
	}
	return d, nil
}

// ReadCSV reads both sheets as header-keyed rows.
func ReadCSV(questions, choices io.Reader) (questionRows, choiceRows []map[string]string, err error) {
	if questionRows, err = readRows(questions); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", QuestionsSheet, err)
	}
	if choiceRows, err = readRows(choices); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", ChoicesSheet, err)
	}
	return questionRows, choiceRows, nil
}

func readRows(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("missing header row")
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		empty := true
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
				if strings.TrimSpace(rec[i]) != "" {
					empty = false
				}
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Sheet is a named table with a header row.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Workbook is the two-sheet interchange format.
type Workbook struct {
	Questions Sheet
	Choices   Sheet
}

// Template returns a workbook with one sample question and two sample choices.
func Template() Workbook {
	return Workbook{
		Questions: Sheet{
			Name:   QuestionsSheet,
			Header: slices.Clone(questionHeader),
			Rows:   [][]string{{"1", "true", "Example question", "", ""}},
		},
		Choices: Sheet{
			Name:   ChoicesSheet,
			Header: slices.Clone(choiceHeader),
			Rows: [][]string{
				{"1", "Yes", "2", "", "", ""},
				{"1", "No", "", "danger", "", ""},
			},
		},
	}
}

// ExportTable converts nodes to a workbook. Edges are written as question
// orders so the sheets round-trip through ImportTable.
func ExportTable(nodes []domain.QuestionNode) Workbook {
	sorted := domain.CloneNodes(nodes)
	slices.SortStableFunc(sorted, func(a, b domain.QuestionNode) int { return a.Order - b.Order })

	orderByID := make(map[string]int, len(sorted))
	for _, n := range sorted {
		orderByID[n.ID] = n.Order
	}

	wb := Workbook{
		Questions: Sheet{Name: QuestionsSheet, Header: slices.Clone(questionHeader)},
		Choices:   Sheet{Name: ChoicesSheet, Header: slices.Clone(choiceHeader)},
	}
	for _, n := range sorted {
		order := strconv.Itoa(n.Order)
		wb.Questions.Rows = append(wb.Questions.Rows, []string{
			order, strconv.FormatBool(n.IsRoot), n.Text, n.Category, n.EvaluatedCondition,
		})
		for _, c := range n.Choices {
			leadsTo := ""
			if !c.Terminal() {
				if o, ok := orderByID[c.LeadsTo]; ok {
					leadsTo = strconv.Itoa(o)
				} else {
					leadsTo = c.LeadsTo
				}
			}
			weight := ""
			if c.Weight != nil {
				weight = strconv.FormatFloat(*c.Weight, 'f', -1, 64)
			}
			wb.Choices.Rows = append(wb.Choices.Rows, []string{
				order, c.Label, leadsTo, strings.Join(c.Flags, ";"), weight, string(c.RiskLevel),
			})
		}
	}
	return wb
}

// Sheets returns both sheets in file order.
func (w Workbook) Sheets() []Sheet {
	return []Sheet{w.Questions, w.Choices}
}

// WriteCSV writes a sheet as CSV.
func (s Sheet) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(s.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCSV writes questions.csv and choices.csv into dir.
func (w Workbook) WriteCSV(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, s := range w.Sheets() {
		f, err := os.Create(filepath.Join(dir, s.Name+".csv"))
		if err != nil {
			return err
		}
		if err := s.WriteCSV(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", s.Name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// WriteZip writes both sheets as CSV entries of a zip archive.
func (w Workbook) WriteZip(out io.Writer) error {
	zw := zip.NewWriter(out)
	for _, s := range w.Sheets() {
		f, err := zw.Create(s.Name + ".csv")
		if err != nil {
			return err
		}
		if err := s.WriteCSV(f); err != nil {
			return fmt.Errorf("failed to write %s: %w", s.Name, err)
		}
	}
	return zw.Close()
}

// ReadZip reads a workbook written by WriteZip.
func ReadZip(r io.ReaderAt, size int64) (questionRows, choiceRows []map[string]string, err error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, nil, err
	}
	open := func(name string) (io.ReadCloser, error) {
		f, err := zr.Open(name + ".csv")
		if err != nil {
			return nil, fmt.Errorf("archive has no %s.csv: %w", name, err)
		}
		return f, nil
	}
	q, err := open(QuestionsSheet)
	if err != nil {
		return nil, nil, err
	}
	defer q.Close()
	c, err := open(ChoicesSheet)
	if err != nil {
		return nil, nil, err
	}
	defer c.Close()
	return ReadCSV(q, c)
}
