package models

// FitnessVerdict is the outcome of a fitness check.
type FitnessVerdict string

const (
	VerdictPassed   FitnessVerdict = "passed"
	VerdictConcerns FitnessVerdict = "concerns"
	VerdictRejected FitnessVerdict = "rejected"
)

// ConcernSeverity grades a single fitness concern.
type ConcernSeverity string

const (
	SeverityHigh   ConcernSeverity = "high"
	SeverityMedium ConcernSeverity = "medium"
	SeverityLow    ConcernSeverity = "low"
)

// Concern is one issue raised by a fitness check.
type Concern struct {
	Category    string          `json:"category"`
	Severity    ConcernSeverity `json:"severity"`
	Description string          `json:"description"`
	Suggestion  string          `json:"suggestion"`
}

// FitnessAssessment is the verdict of an appropriateness check. A non-empty
// concern list blocks progression.
type FitnessAssessment struct {
	Verdict  FitnessVerdict `json:"verdict"`
	Concerns []Concern      `json:"concerns,omitempty"`
	Score    float64        `json:"score"`
}

// Passed reports whether the assessment allows the workflow to proceed.
func (a FitnessAssessment) Passed() bool {
	return a.Verdict == VerdictPassed && len(a.Concerns) == 0
}

// SufficiencyDimensions are the fixed axes a requirement is scored on.
var SufficiencyDimensions = []string{
	"completeness",
	"clarity",
	"feasibility",
	"richness",
}

// SufficiencyAssessment scores how complete a requirement is, independent
// of its validity. Superseded, never merged, on re-assessment.
type SufficiencyAssessment struct {
	Dimensions map[string]float64 `json:"dimensions"`
	Aggregate  float64            `json:"aggregate"`
	Threshold  float64            `json:"threshold"`
	Passed     bool               `json:"passed"`
	Feedback   string             `json:"feedback,omitempty"`
}

// NewSufficiencyAssessment computes the aggregate mean and pass flag from
// per-dimension scores.
func NewSufficiencyAssessment(scores map[string]float64, threshold float64) SufficiencyAssessment {
	a := SufficiencyAssessment{
		Dimensions: make(map[string]float64, len(SufficiencyDimensions)),
		Threshold:  threshold,
	}
	var sum float64
	for _, dim := range SufficiencyDimensions {
		score := scores[dim]
		a.Dimensions[dim] = score
		sum += score
	}
	a.Aggregate = sum / float64(len(SufficiencyDimensions))
	a.Passed = a.Aggregate >= threshold
	return a
}

// ReviewDimensions are the fixed axes a narrative framework is scored on.
var ReviewDimensions = []string{
	"educational_alignment",
	"narrative_coherence",
	"character_design",
	"level_structure",
	"engagement",
	"age_appropriateness",
}

// FrameworkReview is the scored verdict on one framework draft.
type FrameworkReview struct {
	Dimensions map[string]float64 `json:"dimensions"`
	Total      float64            `json:"total"`
	Passed     bool               `json:"passed"`
	Focuses    []string           `json:"focuses,omitempty"`
}

// Evaluate fills Total and Passed from the dimension scores: every
// dimension must meet dimMin and the mean must meet totalMin.
func (r *FrameworkReview) Evaluate(dimMin, totalMin float64) {
	var sum float64
	passed := true
	for _, dim := range ReviewDimensions {
		score := r.Dimensions[dim]
		if score < dimMin {
			passed = false
		}
		sum += score
	}
	r.Total = sum / float64(len(ReviewDimensions))
	if r.Total < totalMin {
		passed = false
	}
	r.Passed = passed
}
