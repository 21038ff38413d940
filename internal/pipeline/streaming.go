package pipeline

import (
	"context"
	"time"
)

type Stage string

const (
	StageRetrieval   Stage = "retrieval"
	StageGeneration  Stage = "generation"
	StageEvaluation  Stage = "evaluation"
	StageImprovement Stage = "improvement"
	StageAssembly    Stage = "assembly"
)

// EventBufferSize is the channel capacity callers should allocate.
const EventBufferSize = 16

// Event is one progress notification emitted as the pipeline enters a
// stage.
type Event struct {
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ProcessStreaming runs the pipeline while emitting stage events to the
// given channel. Events are dropped when the channel is full: a slow
// consumer never stalls the exchange. The caller owns the channel and
// closes it after this returns.
func (o *Orchestrator) ProcessStreaming(ctx context.Context, question string, events chan<- Event) (*Response, error) {
	return o.process(ctx, question, events)
}

func emit(events chan<- Event, stage Stage, message string) {
	if events == nil {
		return
	}

	select {
	case events <- Event{Stage: stage, Message: message, At: time.Now()}:
	default:
		// Slow consumer, drop the event.
	}
}
