package budget

// Total budget bounds for a bundle request.
const (
	MinTotal = 300
	MaxTotal = 50000
)

// Retrieval result limits derived from the retrieval slice.
const (
	tokensPerResult   = 220
	minRetrievalLimit = 5
	maxRetrievalLimit = 40
)

// Percentages configures how a total budget is split. Each slice is floored
// at Min tokens, so the slices may sum to more than the total when the total
// is small.
type Percentages struct {
	WorkspaceRules  float64 `json:"workspace_rules" yaml:"workspace_rules"`
	UserRules       float64 `json:"user_rules" yaml:"user_rules"`
	ProjectSnapshot float64 `json:"project_snapshot" yaml:"project_snapshot"`
	Retrieval       float64 `json:"retrieval" yaml:"retrieval"`
	Min             int     `json:"min" yaml:"min"`
}

// DefaultPercentages returns a 25/10/30/35 split with an 80-token floor.
func DefaultPercentages() Percentages {
	return Percentages{
		WorkspaceRules:  25,
		UserRules:       10,
		ProjectSnapshot: 30,
		Retrieval:       35,
		Min:             80,
	}
}

// Breakdown is the computed split of a total budget.
type Breakdown struct {
	Total           int `json:"total"`
	WorkspaceRules  int `json:"workspace_rules"`
	UserRules       int `json:"user_rules"`
	ProjectSnapshot int `json:"project_snapshot"`
	Retrieval       int `json:"retrieval"`
	RetrievalLimit  int `json:"retrieval_limit"`
}

// ClampTotal clamps a requested total budget to [MinTotal, MaxTotal].
// Zero or negative requests get the floor.
func ClampTotal(n int) int {
	if n < MinTotal {
		return MinTotal
	}
	if n > MaxTotal {
		return MaxTotal
	}
	return n
}

// Slice returns floor(total*pct/100), but never less than min.
func Slice(total int, pct float64, min int) int {
	if pct < 0 {
		pct = 0
	}
	n := int(float64(total) * pct / 100)
	if n < min {
		return min
	}
	return n
}

// Partition splits an already clamped total into the four bundle slices.
func Partition(total int, p Percentages) Breakdown {
	b := Breakdown{
		Total:           total,
		WorkspaceRules:  Slice(total, p.WorkspaceRules, p.Min),
		UserRules:       Slice(total, p.UserRules, p.Min),
		ProjectSnapshot: Slice(total, p.ProjectSnapshot, p.Min),
		Retrieval:       Slice(total, p.Retrieval, p.Min),
	}
	b.RetrievalLimit = RetrievalLimit(b.Retrieval)
	return b
}

// RetrievalLimit derives how many retrieval results to request for a
// retrieval slice: clamp(budget/220, 5, 40).
func RetrievalLimit(retrievalBudget int) int {
	n := retrievalBudget / tokensPerResult
	if n < minRetrievalLimit {
		return minRetrievalLimit
	}
	if n > maxRetrievalLimit {
		return maxRetrievalLimit
	}
	return n
}
