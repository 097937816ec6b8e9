package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/review"
)

// streamPrinter shows replies as they arrive. Conversations in a batch share
// one printer; each line of output is tagged with a short conversation ID
// once more than one conversation has been seen.
type streamPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	seen   map[string]bool
	last   string
	midRow bool
}

func newStreamPrinter(w io.Writer) *streamPrinter {
	return &streamPrinter{w: w, seen: make(map[string]bool)}
}

func (p *streamPrinter) TurnStarted(id string, agent review.Agent, round int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[id] = true
	p.endRow()
	fmt.Fprintf(p.w, "\n%s── %s (round %d) ──\n", p.tag(id), strings.ToUpper(string(agent)), round)
	p.last = id
}

func (p *streamPrinter) Delta(id string, _ review.Agent, d llm.StreamDelta) {
	if d.Text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != id {
		p.endRow()
		fmt.Fprint(p.w, p.tag(id))
		p.last = id
	}
	fmt.Fprint(p.w, d.Text)
	p.midRow = !strings.HasSuffix(d.Text, "\n")
}

func (p *streamPrinter) TurnCompleted(id string, turn review.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endRow()
	if turn.Usage != nil {
		fmt.Fprintf(p.w, "%s(%d tokens)\n", p.tag(id), turn.Usage.TotalTokens)
	}
}

func (p *streamPrinter) endRow() {
	if p.midRow {
		fmt.Fprintln(p.w)
		p.midRow = false
	}
}

func (p *streamPrinter) tag(id string) string {
	if len(p.seen) < 2 {
		return ""
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return "[" + id + "] "
}
