package loam

// NodeMetadata is the front matter of one question document. The document
// body is the question text unless Text is set.
//
// Numeric and flag fields are typed loosely because Loam's strict mode
// yields json.Number and YAML allows either a string or a list for flags.
type NodeMetadata struct {
	ID                 string `json:"id" mapstructure:"id"`
	Order              any    `json:"order" mapstructure:"order"`
	Root               bool   `json:"root" mapstructure:"root"`
	Text               string `json:"text" mapstructure:"text"`
	StageType          string `json:"stage_type" mapstructure:"stage_type"`
	StageRange         string `json:"stage_range" mapstructure:"stage_range"`
	Category           string `json:"category" mapstructure:"category"`
	EvaluatedCondition string `json:"evaluated_condition" mapstructure:"evaluated_condition"`
	Choices            []any  `json:"choices" mapstructure:"choices"`
}

// ChoiceMetadata is one entry of NodeMetadata.Choices.
type ChoiceMetadata struct {
	Label     string   `mapstructure:"label"`
	Text      string   `mapstructure:"text"` // alias of label
	LeadsTo   string   `mapstructure:"leads_to"`
	To        string   `mapstructure:"to"` // alias of leads_to
	Flag      any      `mapstructure:"flag"`
	Flags     any      `mapstructure:"flags"`
	Weight    *float64 `mapstructure:"weight"`
	RiskLevel string   `mapstructure:"risk_level"`
}
