package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/llm"
	"github.com/civic-agent/backend/internal/retrieval"
	"github.com/civic-agent/backend/internal/routing"
	"github.com/civic-agent/backend/pkg/logger"
)

// RegulationLookup resolves topic keywords to applicable regulation tags.
// A lookup failure yields empty tags, never a generation error.
type RegulationLookup interface {
	RegulationsFor(ctx context.Context, topics []string) ([]string, error)
}

// Generator produces a Draft for a question using the prompt profile the
// classifier selected.
type Generator struct {
	completer   llm.Completer
	regulations RegulationLookup
}

func NewGenerator(completer llm.Completer, regulations RegulationLookup) *Generator {
	return &Generator{
		completer:   completer,
		regulations: regulations,
	}
}

var profilePrompts = map[routing.Profile]string{
	routing.ProfileGeneral: `You are an assistant answering questions from citizens on behalf of a public authority.

Your answers must:
1. Use ONLY the supporting documents provided
2. Be written in plain, friendly language
3. Cite documents using [source_id] notation
4. Say clearly when the documents do not cover the question`,

	routing.ProfileCompliance: `You are an assistant answering regulatory and compliance questions from citizens on behalf of a public authority.

Your answers must:
1. Use ONLY the supporting documents provided
2. Name the specific regulation, article or policy that applies
3. Cite documents using [source_id] notation
4. Never speculate about legal consequences; recommend contacting a caseworker when the documents are insufficient`,

	routing.ProfileTechnical: `You are an assistant helping citizens with technical problems on public-sector digital services.

Your answers must:
1. Use ONLY the supporting documents provided
2. Give numbered, concrete steps the citizen can follow
3. Cite documents using [source_id] notation
4. Suggest contacting support when the documents do not cover the problem`,
}

// Generate runs one generation call and classifies the draft's metadata.
func (g *Generator) Generate(ctx context.Context, question string, decision routing.Decision, docs retrieval.Context) (*Draft, error) {
	start := time.Now()

	systemPrompt, ok := profilePrompts[decision.Profile]
	if !ok {
		systemPrompt = profilePrompts[routing.ProfileGeneral]
	}

	userPrompt := fmt.Sprintf(`Question from a citizen: %s

%s

Answer the question.`, question, docs.FormatForPrompt())

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.2,
		MaxTokens:    2048,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	draft := &Draft{
		Text:             resp.Content,
		ElapsedMS:        time.Since(start).Milliseconds(),
		Complexity:       classifyComplexity(question, docs),
		Confidence:       classifyConfidence(docs),
		NeedsHumanExpert: needsHumanExpert(resp.Content, decision, docs),
		RegulationTags:   g.lookupRegulations(ctx, decision),
	}

	logger.Debug("Draft generated",
		zap.String("profile", string(decision.Profile)),
		zap.String("complexity", string(draft.Complexity)),
		zap.String("confidence", string(draft.Confidence)),
		zap.Int64("elapsed_ms", draft.ElapsedMS),
	)

	return draft, nil
}

func classifyComplexity(question string, docs retrieval.Context) Complexity {
	if len(question) > 240 || len(docs.Documents) > 4 {
		return ComplexityComplex
	}
	if len(question) > 80 {
		return ComplexityModerate
	}
	return ComplexitySimple
}

func classifyConfidence(docs retrieval.Context) Confidence {
	if !docs.HasRelevantSources {
		return ConfidenceLow
	}

	var total float64
	for _, doc := range docs.Documents {
		total += doc.Score
	}
	avg := total / float64(len(docs.Documents))

	if avg >= 0.8 {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}

var expertPhrases = []string{
	"contact a caseworker",
	"seek legal advice",
	"cannot be determined from the documents",
}

func needsHumanExpert(text string, decision routing.Decision, docs retrieval.Context) bool {
	lower := strings.ToLower(text)
	for _, phrase := range expertPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	return decision.Profile == routing.ProfileCompliance && !docs.HasRelevantSources
}

func (g *Generator) lookupRegulations(ctx context.Context, decision routing.Decision) []string {
	if g.regulations == nil || decision.Profile != routing.ProfileCompliance || len(decision.MatchedKeywords) == 0 {
		return nil
	}

	tags, err := g.regulations.RegulationsFor(ctx, decision.MatchedKeywords)
	if err != nil {
		logger.Warn("Regulation lookup failed", zap.Error(err))
		return nil
	}
	return tags
}
