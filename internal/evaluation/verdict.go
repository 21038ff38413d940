package evaluation

type Dimension string

const (
	DimensionRelevance        Dimension = "relevance"
	DimensionTone             Dimension = "tone"
	DimensionCompleteness     Dimension = "completeness"
	DimensionPolicyCompliance Dimension = "policy_compliance"
)

// AllDimensions fixes the iteration order everywhere a verdict is walked.
var AllDimensions = []Dimension{
	DimensionRelevance,
	DimensionTone,
	DimensionCompleteness,
	DimensionPolicyCompliance,
}

// Verdict is the structured outcome of one judge call. Immutable once
// produced. Invariant: Passed == (len(FailedDimensions) == 0 &&
// !HallucinationDetected).
type Verdict struct {
	Scores                map[Dimension]float64
	Passed                bool
	FailedDimensions      []Dimension
	HallucinationDetected bool
	UngroundedClaims      []string
	Suggestions           map[Dimension]string
	LatencyMS             int64
}

// OverallScore is the unweighted mean of the four dimension scores.
func (v *Verdict) OverallScore() float64 {
	var sum float64
	for _, d := range AllDimensions {
		sum += v.Scores[d]
	}
	return sum / float64(len(AllDimensions))
}

// Failed reports whether the named dimension is below its threshold.
func (v *Verdict) Failed(d Dimension) bool {
	for _, failed := range v.FailedDimensions {
		if failed == d {
			return true
		}
	}
	return false
}

// ScoreMap returns the scores keyed by plain strings for persistence.
func (v *Verdict) ScoreMap() map[string]float64 {
	out := make(map[string]float64, len(v.Scores))
	for d, s := range v.Scores {
		out[string(d)] = s
	}
	return out
}
