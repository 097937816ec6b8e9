package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/metrics"
	"github.com/dshills/tandem/internal/review"
)

// PromptBuilder renders the request for an agent's next turn. It must be pure
// and must not retain or modify the transcript.
type PromptBuilder interface {
	Build(agent review.Agent, transcript []review.Turn, in review.Input) llm.Request
}

// Settings is the per-conversation policy.
type Settings struct {
	Senior         llm.Backend
	Junior         llm.Backend
	SeniorSampling llm.Sampling
	JuniorSampling llm.Sampling
	// MaxRounds caps completed senior/junior exchanges. Zero means a single
	// senior turn and no junior turn.
	MaxRounds int
	// AgreementSentinel ends the conversation when it appears in a junior
	// reply (case-insensitive). Empty means review.DefaultSentinel.
	AgreementSentinel string
	// Stream requests streamed replies, delivered to the observer.
	Stream bool
	// Rules apply severity overrides to the extracted findings.
	Rules *review.Rules
}

// Orchestrator runs senior/junior review conversations. It holds no
// per-conversation state, so one Orchestrator may run many conversations
// concurrently.
type Orchestrator struct {
	reg      *llm.Registry
	builder  PromptBuilder
	settings Settings
	logger   *zap.Logger
	metrics  *metrics.Metrics
	observer Observer
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records turns and outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithObserver receives live turn progress.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(reg *llm.Registry, builder PromptBuilder, settings Settings, opts ...Option) *Orchestrator {
	if settings.AgreementSentinel == "" {
		settings.AgreementSentinel = review.DefaultSentinel
	}
	if settings.MaxRounds < 0 {
		settings.MaxRounds = 0
	}
	o := &Orchestrator{
		reg:      reg,
		builder:  builder,
		settings: settings,
		logger:   zap.NewNop(),
		observer: NopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Settings returns the effective settings.
func (o *Orchestrator) Settings() Settings {
	return o.settings
}

// state is the private, append-only record of one conversation.
type state struct {
	id         string
	input      review.Input
	transcript []review.Turn
	round      int
	usage      llm.TokenUsage
	senior     binding
	junior     binding
}

type binding struct {
	backend  llm.Backend
	provider llm.Provider
	sampling llm.Sampling
}

func (s *state) bound(agent review.Agent) binding {
	if agent == review.Senior {
		return s.senior
	}
	return s.junior
}

// Run drives one conversation to a verdict. The verdict is never nil: on
// failure it has Outcome aborted, the transcript up to the last completed
// turn, and Error set, and the error is returned alongside it.
func (o *Orchestrator) Run(ctx context.Context, in review.Input) (*review.Verdict, error) {
	s := &state{
		id:         uuid.NewString(),
		input:      in,
		transcript: []review.Turn{},
	}
	v := &review.Verdict{
		ID:        s.id,
		Senior:    o.settings.Senior,
		Junior:    o.settings.Junior,
		Input:     review.Input{Kind: in.Kind, Source: in.Source},
		StartedAt: o.now(),
	}
	log := o.logger.With(zap.String("conversation", s.id), zap.String("input", in.Source.Label()))

	if err := o.resolve(s); err != nil {
		return o.finish(log, v, s, review.OutcomeAborted, err)
	}

	log.Debug("conversation started",
		zap.Stringer("senior", o.settings.Senior),
		zap.Stringer("junior", o.settings.Junior),
		zap.Int("max_rounds", o.settings.MaxRounds),
	)

	outcome, err := o.loop(ctx, log, s)
	return o.finish(log, v, s, outcome, err)
}

// resolve binds both agents before any provider call is made.
func (o *Orchestrator) resolve(s *state) error {
	sp, err := o.reg.Resolve(o.settings.Senior)
	if err != nil {
		return &Error{Kind: ErrUnsupportedModel, Err: err}
	}
	jp, err := o.reg.Resolve(o.settings.Junior)
	if err != nil {
		return &Error{Kind: ErrUnsupportedModel, Err: err}
	}
	s.senior = binding{backend: o.settings.Senior, provider: sp, sampling: o.settings.SeniorSampling}
	s.junior = binding{backend: o.settings.Junior, provider: jp, sampling: o.settings.JuniorSampling}
	return nil
}

func (o *Orchestrator) loop(ctx context.Context, log *zap.Logger, s *state) (review.Outcome, error) {
	for {
		if err := o.turn(ctx, log, s, review.Senior); err != nil {
			return review.OutcomeAborted, err
		}
		if o.settings.MaxRounds == 0 {
			return review.OutcomeRoundsExhausted, nil
		}

		if err := o.turn(ctx, log, s, review.Junior); err != nil {
			return review.OutcomeAborted, err
		}
		s.round++

		// Agreement wins over exhaustion.
		if o.agreed(s.transcript[len(s.transcript)-1].Message.Content) {
			return review.OutcomeAgreed, nil
		}
		if s.round >= o.settings.MaxRounds {
			return review.OutcomeRoundsExhausted, nil
		}
	}
}

func (o *Orchestrator) agreed(content string) bool {
	return strings.Contains(strings.ToLower(content), strings.ToLower(o.settings.AgreementSentinel))
}

// turn runs one agent turn and appends it to the transcript. Nothing is
// appended on failure.
func (o *Orchestrator) turn(ctx context.Context, log *zap.Logger, s *state, agent review.Agent) error {
	round := s.round + 1
	if err := ctx.Err(); err != nil {
		return &Error{Kind: ErrCancelled, Agent: agent, Round: round, Err: err}
	}

	b := s.bound(agent)
	// Capacity is clipped so a builder append can never write into our slice.
	req := o.builder.Build(agent, s.transcript[:len(s.transcript):len(s.transcript)], s.input)
	req.Model = b.backend.Model
	req.Sampling = b.sampling
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	req.Metadata["conversation"] = s.id

	o.observer.TurnStarted(s.id, agent, round)
	log.Debug("turn started",
		zap.String("agent", string(agent)),
		zap.Int("round", round),
		zap.Stringer("backend", b.backend),
		zap.Int("messages", len(req.Messages)),
	)

	var onDelta func(llm.StreamDelta)
	if o.settings.Stream {
		onDelta = func(d llm.StreamDelta) { o.observer.Delta(s.id, agent, d) }
	}

	start := o.now()
	resp, err := o.reg.Invoke(ctx, b.provider, req, onDelta)
	if err != nil {
		return &Error{Kind: classify(ctx, err), Agent: agent, Round: round, Err: err}
	}
	if strings.TrimSpace(resp.Content) == "" && resp.FinishReason == "" {
		return &Error{Kind: ErrMalformedResponse, Agent: agent, Round: round}
	}

	t := review.Turn{
		Agent:        agent,
		Round:        round,
		Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: resp.Content},
		Provider:     b.backend.ProviderID(),
		Model:        b.backend.Model,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
	}
	s.transcript = append(s.transcript, t)
	s.usage.Add(resp.Usage)

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	o.metrics.RecordTurn(string(agent), string(t.Provider), tokens)
	o.observer.TurnCompleted(s.id, t)
	log.Debug("turn completed",
		zap.String("agent", string(agent)),
		zap.Int("round", round),
		zap.String("finish_reason", resp.FinishReason),
		zap.Int("tokens", tokens),
		zap.Duration("elapsed", o.now().Sub(start)),
	)
	return nil
}

// finish fills in the verdict. Findings come from the last senior turn; a
// reply without a parsable findings block leaves them empty.
func (o *Orchestrator) finish(log *zap.Logger, v *review.Verdict, s *state, outcome review.Outcome, err error) (*review.Verdict, error) {
	v.Outcome = outcome
	v.Rounds = s.round
	v.Transcript = s.transcript
	v.Usage = s.usage

	findings, ferr := review.ExtractFindings(s.transcript, o.settings.Rules)
	if ferr != nil {
		log.Debug("no findings parsed from senior reply", zap.Error(ferr))
	}
	if findings == nil {
		findings = []review.Finding{}
	}
	v.Findings = findings
	v.Summary = review.ComputeSummary(findings)
	v.FinishedAt = o.now()

	o.metrics.RecordConversation(string(outcome))

	if err != nil {
		v.Error = err.Error()
		log.Warn("conversation aborted",
			zap.Int("rounds", v.Rounds),
			zap.Int("turns", len(v.Transcript)),
			zap.Error(err),
		)
		return v, err
	}
	log.Info("conversation concluded",
		zap.String("outcome", string(outcome)),
		zap.Int("rounds", v.Rounds),
		zap.Int("turns", len(v.Transcript)),
		zap.Int("findings", len(findings)),
		zap.Duration("elapsed", v.Duration()),
	)
	return v, nil
}
