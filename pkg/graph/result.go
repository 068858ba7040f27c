package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Veolinan/triage/pkg/domain"
)

// Address locates a node or choice inside a node set.
type Address string

// GraphAddress is used for problems that belong to no single node.
const GraphAddress Address = "graph"

// NodeAddress returns the address of the i-th node.
func NodeAddress(i int) Address {
	return Address(fmt.Sprintf("q-%d", i))
}

// ChoiceAddress returns the address of the j-th choice of the i-th node.
func ChoiceAddress(i, j int) Address {
	return Address(fmt.Sprintf("q-%d-c-%d", i, j))
}

// IssueCode identifies the kind of problem.
type IssueCode string

const (
	IssueEmptyText         IssueCode = "empty_text"
	IssueNoChoices         IssueCode = "no_choices"
	IssueEmptyLabel        IssueCode = "empty_label"
	IssueDanglingEdge      IssueCode = "dangling_edge"
	IssueMissingID         IssueCode = "missing_id"
	IssueDuplicateID       IssueCode = "duplicate_id"
	IssueNoRoot            IssueCode = "no_root"
	IssueMultipleRoots     IssueCode = "multiple_roots"
	IssueInvalidRiskLevel  IssueCode = "invalid_risk_level"
	IssueUnreachable       IssueCode = "unreachable"
	IssueCycle             IssueCode = "cycle"
	IssueDuplicateOrder    IssueCode = "duplicate_order"
	IssuePartitionMismatch IssueCode = "partition_mismatch"
	IssueMissingCategory   IssueCode = "missing_category"
)

// Issue is a single validation failure.
type Issue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

// Result maps addresses to the problems found there. An empty Result means valid.
type Result map[Address][]Issue

// Add records a problem at addr.
func (r Result) Add(addr Address, code IssueCode, format string, args ...any) {
	r[addr] = append(r[addr], Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

// OK reports whether no problem was recorded.
func (r Result) OK() bool {
	return len(r) == 0
}

// Has reports whether addr carries an issue with the given code.
func (r Result) Has(addr Address, code IssueCode) bool {
	for _, is := range r[addr] {
		if is.Code == code {
			return true
		}
	}
	return false
}

// Count returns the total number of issues.
func (r Result) Count() int {
	n := 0
	for _, issues := range r {
		n += len(issues)
	}
	return n
}

// Merge copies every issue of other into r.
func (r Result) Merge(other Result) {
	for addr, issues := range other {
		r[addr] = append(r[addr], issues...)
	}
}

// Addresses returns the addresses in reading order: graph first, then by
// node index and choice index.
func (r Result) Addresses() []Address {
	out := make([]Address, 0, len(r))
	for addr := range r {
		out = append(out, addr)
	}
	slices.SortFunc(out, compareAddress)
	return out
}

// Err returns nil for a valid result, otherwise an *Error wrapping
// domain.ErrMalformedGraph.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{Result: r}
}

// Error carries a failed Result.
type Error struct {
	Result Result
}

func (e *Error) Error() string {
	var sb strings.Builder
	n := e.Result.Count()
	if n == 1 {
		sb.WriteString("1 validation error: ")
	} else {
		sb.WriteString(fmt.Sprintf("%d validation errors:\n", n))
	}
	i := 0
	for _, addr := range e.Result.Addresses() {
		for _, is := range e.Result[addr] {
			i++
			if n == 1 {
				sb.WriteString(fmt.Sprintf("%s: %s", addr, is.Message))
				continue
			}
			sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i, addr, is.Message))
		}
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return domain.ErrMalformedGraph
}

func compareAddress(a, b Address) int {
	ai, aj := parseAddress(a)
	bi, bj := parseAddress(b)
	if ai != bi {
		return ai - bi
	}
	return aj - bj
}

// parseAddress returns (-1,-1) for GraphAddress, (i,-1) for a node and (i,j) for a choice.
func parseAddress(a Address) (int, int) {
	i, j := -1, -1
	if a == GraphAddress {
		return i, j
	}
	if n, _ := fmt.Sscanf(string(a), "q-%d-c-%d", &i, &j); n == 2 {
		return i, j
	}
	j = -1
	if n, _ := fmt.Sscanf(string(a), "q-%d", &i); n == 1 {
		return i, j
	}
	return -1, -1
}
