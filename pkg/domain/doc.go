/*
Package domain contains the core models of the triage questionnaire engine.

It defines the question graph (QuestionNode, Choice), the partition a graph
belongs to (Partition, StageCatalog), the evidence gathered while walking it
(FlagSet, RiskLevel, Assessment), the traversal Session and the persisted
ResponseRecord. The package has no I/O and no third-party dependencies so
that every adapter, the runtime and the authoring tools can share it.

# Key Entities

  - QuestionNode: a respondent-facing question with an ordered list of choices.
  - Choice: an answer option; LeadsTo addresses the next node by its stable ID,
    an empty LeadsTo ends the questionnaire.
  - Partition: the (stage type, stage range) pair that scopes one graph.
  - Session: the snapshot of one respondent walking one partition.
  - ResponseRecord: the submitted outcome of a finished session.
*/
package domain
