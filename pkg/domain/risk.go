package domain

// RiskLevel is the categorical tag carried by a choice.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskAlert  RiskLevel = "alert"
	RiskDanger RiskLevel = "danger"
)

// Valid reports whether r is empty or one of the known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case "", RiskLow, RiskAlert, RiskDanger:
		return true
	}
	return false
}

// Classification is the three-tier outcome of a finished walk.
type Classification string

const (
	ClassLowRisk    Classification = "Low Risk"
	ClassAlertZone  Classification = "Alert Zone"
	ClassDangerZone Classification = "Danger Zone"
)

// NoCondition is the suggested condition when no flag was collected.
const NoCondition = "None"

// ConfidenceEntry is one ranked candidate condition.
type ConfidenceEntry struct {
	Condition string `json:"condition" validate:"required"`
	Score     int    `json:"score" validate:"min=0,max=100"`
}

// Assessment is the scored evidence of a (projected or finished) walk.
type Assessment struct {
	Flags              []string          `json:"flags"`
	Occurrences        []string          `json:"occurrences,omitempty"`
	Confidence         []ConfidenceEntry `json:"confidence"`
	SuggestedCondition string            `json:"suggestedCondition"`
	TotalWeight        float64           `json:"totalWeight"`
	RiskLevels         []RiskLevel       `json:"riskLevels,omitempty"`
	Classification     Classification    `json:"classification"`
}
