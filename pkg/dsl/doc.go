/*
Package dsl provides a fluent Go builder for question graphs.

It is used to seed stores, write tests and build examples without authoring
YAML, Markdown or spreadsheets by hand.

Example usage:

	nodes := dsl.New(domain.Partition{StageType: "pregnant", StageRange: "1–3 months"}).
		Add("q1").Root().Text("Any bleeding?").Category("bleeding").
		Choice("Yes").To("q2").Flag("danger").
		Choice("No").
		Add("q2").Text("Severe pain?").
		Choice("Yes").Flag("danger").Weight(10).Risk(domain.RiskDanger).
		Choice("No").Flag("alert").Weight(3).Risk(domain.RiskAlert).
		Build()
*/
package dsl
