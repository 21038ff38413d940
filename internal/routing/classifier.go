// Package routing selects a response profile for an incoming question by
// scoring it against trigger-keyword sets. The decision is advisory: it
// picks the prompt profile and retrieval strategy, it never gates
// correctness.
package routing

import "strings"

type Profile string

const (
	ProfileGeneral    Profile = "GENERAL"
	ProfileCompliance Profile = "COMPLIANCE"
	ProfileTechnical  Profile = "TECHNICAL"
)

// Decision carries the chosen profile plus traceability metadata that is
// surfaced in the response trace.
type Decision struct {
	Profile         Profile
	Confidence      float64
	MatchedKeywords []string
}

var complianceKeywords = []string{
	"regulation", "compliance", "gdpr", "privacy", "data protection",
	"legal", "statute", "permit", "license", "policy",
	"audit", "liability", "consent", "retention", "procurement",
	"tender", "accessibility", "records", "freedom of information", "mandate",
}

var technicalKeywords = []string{
	"api", "integration", "login", "password", "error",
	"server", "database", "software", "install", "configure",
	"network", "browser", "upload", "download", "authentication",
	"certificate", "portal", "timeout",
}

type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

func (c *Classifier) Classify(question string) Decision {
	complianceScore, complianceMatches := scoreKeywords(question, complianceKeywords)
	technicalScore, technicalMatches := scoreKeywords(question, technicalKeywords)

	switch {
	case complianceScore > 0.15 && complianceScore >= technicalScore:
		return Decision{
			Profile:         ProfileCompliance,
			Confidence:      complianceScore,
			MatchedKeywords: complianceMatches,
		}
	case technicalScore > 0.1 && technicalScore > complianceScore:
		return Decision{
			Profile:         ProfileTechnical,
			Confidence:      technicalScore,
			MatchedKeywords: technicalMatches,
		}
	default:
		return Decision{
			Profile:    ProfileGeneral,
			Confidence: 1.0 - max(complianceScore, technicalScore),
		}
	}
}

// scoreKeywords computes min(matchRatio + matchBonus, 1.0) where the bonus
// rewards absolute match count up to 0.6.
func scoreKeywords(question string, keywords []string) (float64, []string) {
	lower := strings.ToLower(question)

	var matched []string
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			matched = append(matched, keyword)
		}
	}

	matches := float64(len(matched))
	matchRatio := matches / float64(len(keywords))
	matchBonus := matches * 0.15
	if matchBonus > 0.6 {
		matchBonus = 0.6
	}

	score := matchRatio + matchBonus
	if score > 1.0 {
		score = 1.0
	}

	return score, matched
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
