package answer

type Complexity string

const (
	ComplexitySimple   Complexity = "SIMPLE"
	ComplexityModerate Complexity = "MODERATE"
	ComplexityComplex  Complexity = "COMPLEX"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Draft is one generated answer plus its generation metadata. Superseded
// drafts are retained in the iteration history, never mutated in place.
type Draft struct {
	Text             string
	ElapsedMS        int64
	Complexity       Complexity
	Confidence       Confidence
	NeedsHumanExpert bool
	RegulationTags   []string
}
