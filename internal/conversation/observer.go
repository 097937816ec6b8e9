package conversation

import (
	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/review"
)

// Observer receives live progress from a running conversation. Calls for one
// conversation never overlap, but a batch run shares the observer between
// conversations, so implementations used with RunBatch must be safe for
// concurrent use.
type Observer interface {
	TurnStarted(id string, agent review.Agent, round int)
	// Delta is called for each streamed delta. A retried call restarts its
	// stream, so the same text may be delivered more than once.
	Delta(id string, agent review.Agent, d llm.StreamDelta)
	TurnCompleted(id string, turn review.Turn)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) TurnStarted(string, review.Agent, int)       {}
func (NopObserver) Delta(string, review.Agent, llm.StreamDelta) {}
func (NopObserver) TurnCompleted(string, review.Turn)           {}
