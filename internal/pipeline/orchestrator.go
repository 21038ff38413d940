// Package pipeline orchestrates the full question-answering flow: route,
// retrieve, generate, evaluate, improve, assemble. Every answer leaves the
// pipeline with a quality verdict attached; there is no fast path around
// the judge.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/answer"
	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/internal/escalation"
	"github.com/civic-agent/backend/internal/evaluation"
	"github.com/civic-agent/backend/internal/improve"
	"github.com/civic-agent/backend/internal/retrieval"
	"github.com/civic-agent/backend/internal/routing"
	"github.com/civic-agent/backend/internal/storage/models"
	"github.com/civic-agent/backend/pkg/logger"
)

var ErrEmptyQuestion = fmt.Errorf("question must not be empty")

// HistorySink records finished exchanges. Persistence is best-effort.
type HistorySink interface {
	InsertExchangeRecord(record *models.ExchangeRecord) error
}

// Response is the assembled result of one exchange.
type Response struct {
	ExchangeID          string                     `json:"exchange_id"`
	Question            string                     `json:"question"`
	Answer              string                     `json:"answer"`
	OriginalAnswer      string                     `json:"original_answer,omitempty"`
	Profile             routing.Profile            `json:"profile"`
	Confidence          answer.Confidence          `json:"confidence"`
	Sources             []retrieval.SourceDocument `json:"sources,omitempty"`
	RegulationTags      []string                   `json:"regulation_tags,omitempty"`
	QualityPassed       bool                       `json:"quality_passed"`
	OverallScore        float64                    `json:"overall_score"`
	Scores              map[string]float64         `json:"scores"`
	HallucinationFound  bool                       `json:"hallucination_found"`
	ImprovementRounds   int                        `json:"improvement_rounds"`
	ImprovementsApplied []string                   `json:"improvements_applied,omitempty"`
	Escalated           bool                       `json:"escalated"`
	EscalationReason    models.FlagReason          `json:"escalation_reason,omitempty"`
	LatencyMS           int64                      `json:"latency_ms"`
}

// Stats is a running tally of pipeline outcomes since startup.
type Stats struct {
	TotalExchanges int64 `json:"total_exchanges"`
	QualityPassed  int64 `json:"quality_passed"`
	Improved       int64 `json:"improved"`
	Escalated      int64 `json:"escalated"`
}

type Orchestrator struct {
	classifier *routing.Classifier
	retriever  retrieval.Retriever
	generator  *answer.Generator
	evaluator  *evaluation.Evaluator
	improver   *improve.Improver
	gate       *escalation.Gate
	queue      *escalation.Queue
	config     *configstore.Store
	history    HistorySink

	totalExchanges atomic.Int64
	qualityPassed  atomic.Int64
	improved       atomic.Int64
	escalated      atomic.Int64
}

func NewOrchestrator(
	classifier *routing.Classifier,
	retriever retrieval.Retriever,
	generator *answer.Generator,
	evaluator *evaluation.Evaluator,
	improver *improve.Improver,
	gate *escalation.Gate,
	queue *escalation.Queue,
	config *configstore.Store,
	history HistorySink,
) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		retriever:  retriever,
		generator:  generator,
		evaluator:  evaluator,
		improver:   improver,
		gate:       gate,
		queue:      queue,
		config:     config,
		history:    history,
	}
}

// Process answers one question through the full pipeline.
func (o *Orchestrator) Process(ctx context.Context, question string) (*Response, error) {
	return o.process(ctx, question, nil)
}

func (o *Orchestrator) process(ctx context.Context, question string, events chan<- Event) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	start := time.Now()
	exchangeID := uuid.New().String()

	decision := o.classifier.Classify(question)
	logger.Info("Question routed",
		zap.String("exchange_id", exchangeID),
		zap.String("profile", string(decision.Profile)),
		zap.Float64("confidence", decision.Confidence),
	)

	emit(events, StageRetrieval, "searching knowledge base")
	docs := o.retrieve(ctx, question)

	emit(events, StageGeneration, fmt.Sprintf("generating with %s profile", decision.Profile))
	draft, err := o.generator.Generate(ctx, question, decision, docs)
	if err != nil {
		return nil, fmt.Errorf("generation failed for exchange %s: %w", exchangeID, err)
	}

	emit(events, StageEvaluation, "scoring answer quality")
	verdict := o.evaluator.Evaluate(ctx, question, draft.Text, docs)

	improvement := o.improver.RunWithProgress(ctx, question, draft, verdict, docs, func(round int) {
		emit(events, StageImprovement, fmt.Sprintf("improvement round %d", round))
	})

	emit(events, StageAssembly, "assembling response")
	response := o.assemble(exchangeID, question, decision, docs, draft, improvement, start)

	o.recordOutcome(response)

	logger.Info("Exchange completed",
		zap.String("exchange_id", exchangeID),
		zap.Bool("quality_passed", response.QualityPassed),
		zap.Float64("overall_score", response.OverallScore),
		zap.Int("improvement_rounds", response.ImprovementRounds),
		zap.Bool("escalated", response.Escalated),
		zap.Int64("latency_ms", response.LatencyMS),
	)

	return response, nil
}

// retrieve never fails the exchange: a retriever error degrades to an
// empty context and the answer is generated without sources.
func (o *Orchestrator) retrieve(ctx context.Context, question string) retrieval.Context {
	k := o.config.MaxResultsPerSearch()

	docs, err := o.retriever.Search(ctx, question, k)
	if err != nil {
		logger.Warn("Retrieval failed, continuing without sources", zap.Error(err))
		docs = nil
	}

	return retrieval.Context{
		Documents:          docs,
		HasRelevantSources: len(docs) > 0,
	}
}

func (o *Orchestrator) assemble(
	exchangeID, question string,
	decision routing.Decision,
	docs retrieval.Context,
	draft *answer.Draft,
	improvement *improve.Result,
	start time.Time,
) *Response {
	final := improvement.FinalVerdict

	// Sources are attached only when they exist and the final answer is
	// actually judged relevant to them.
	relevanceFloor := o.config.Thresholds().Relevance
	includeSources := docs.HasRelevantSources &&
		final.Scores[evaluation.DimensionRelevance] >= relevanceFloor

	confidence := draft.Confidence
	if !includeSources {
		confidence = answer.ConfidenceLow
	}

	response := &Response{
		ExchangeID:          exchangeID,
		Question:            question,
		Answer:              improvement.Answer,
		Profile:             decision.Profile,
		Confidence:          confidence,
		RegulationTags:      draft.RegulationTags,
		QualityPassed:       final.Passed,
		OverallScore:        final.OverallScore(),
		Scores:              final.ScoreMap(),
		HallucinationFound:  final.HallucinationDetected,
		ImprovementRounds:   improvement.RoundsUsed,
		ImprovementsApplied: improvement.ImprovementsApplied,
		LatencyMS:           time.Since(start).Milliseconds(),
	}

	if includeSources {
		response.Sources = docs.Documents
	}
	if improvement.Improved() {
		response.OriginalAnswer = improvement.OriginalAnswer
	}

	if reason, flagged := o.gate.Decide(final, draft, confidence); flagged {
		response.Escalated = true
		response.EscalationReason = reason
		o.queue.Enqueue(question, response.Answer, final, reason)
	}

	return response
}

func (o *Orchestrator) recordOutcome(response *Response) {
	o.totalExchanges.Add(1)
	if response.QualityPassed {
		o.qualityPassed.Add(1)
	}
	if response.ImprovementRounds > 0 {
		o.improved.Add(1)
	}
	if response.Escalated {
		o.escalated.Add(1)
	}

	if o.history == nil {
		return
	}

	record := &models.ExchangeRecord{
		ID:           response.ExchangeID,
		Question:     response.Question,
		Answer:       response.Answer,
		Profile:      string(response.Profile),
		OverallScore: response.OverallScore,
		Passed:       response.QualityPassed,
		Escalated:    response.Escalated,
		RoundsUsed:   response.ImprovementRounds,
		LatencyMS:    int(response.LatencyMS),
		CreatedAt:    time.Now(),
	}
	if err := o.history.InsertExchangeRecord(record); err != nil {
		logger.Warn("Failed to record exchange history",
			zap.String("exchange_id", response.ExchangeID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		TotalExchanges: o.totalExchanges.Load(),
		QualityPassed:  o.qualityPassed.Load(),
		Improved:       o.improved.Load(),
		Escalated:      o.escalated.Load(),
	}
}
