package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/Veolinan/triage"
	"github.com/Veolinan/triage/pkg/authoring"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/Veolinan/triage/pkg/graph"
	"github.com/Veolinan/triage/pkg/ports"
)

// PartitionReport is the validation outcome of one stored partition.
type PartitionReport struct {
	Partition domain.Partition
	Nodes     int
	Issues    graph.Result
}

// ValidateBank runs the authoring checks over every non-empty partition of
// the bank. Partitions come from the store when it can list them, otherwise
// from the stage catalog.
func ValidateBank(ctx context.Context, eng *triage.Engine) ([]PartitionReport, error) {
	partitions, err := bankPartitions(ctx, eng)
	if err != nil {
		return nil, err
	}

	var reports []PartitionReport
	for _, p := range partitions {
		d, err := authoring.Open(ctx, eng.Nodes(), p)
		if err != nil {
			return nil, err
		}
		if len(d.Nodes) == 0 {
			continue
		}
		issues := d.ValidateAll()
		if err := eng.Catalog().Validate(p); err != nil {
			issues.Add(graph.GraphAddress, graph.IssuePartitionMismatch, "%v", err)
		}
		reports = append(reports, PartitionReport{Partition: p, Nodes: len(d.Nodes), Issues: issues})
	}
	return reports, nil
}

func bankPartitions(ctx context.Context, eng *triage.Engine) ([]domain.Partition, error) {
	if lister, ok := eng.Nodes().(ports.PartitionLister); ok {
		ps, err := lister.ListPartitions(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrLoadFailure, err)
		}
		slices.SortFunc(ps, func(a, b domain.Partition) int { return strings.Compare(a.Key(), b.Key()) })
		return ps, nil
	}

	var ps []domain.Partition
	for _, stage := range eng.Catalog() {
		for _, r := range stage.Ranges {
			ps = append(ps, domain.Partition{StageType: stage.Type, StageRange: r})
		}
	}
	return ps, nil
}

// PrintReports writes one line per partition and one per issue. It returns
// false when any partition has issues.
func PrintReports(w io.Writer, reports []PartitionReport) bool {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No partitions found.")
		return true
	}
	ok := true
	for _, r := range reports {
		if r.Issues.OK() {
			fmt.Fprintf(w, "✓ %s (%d questions)\n", r.Partition, r.Nodes)
			continue
		}
		ok = false
		fmt.Fprintf(w, "✗ %s (%d questions, %d issues)\n", r.Partition, r.Nodes, r.Issues.Count())
		for _, addr := range r.Issues.Addresses() {
			for _, is := range r.Issues[addr] {
				fmt.Fprintf(w, "    %s: [%s] %s\n", addr, is.Code, is.Message)
			}
		}
	}
	return ok
}
