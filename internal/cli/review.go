package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dshills/tandem/internal/config"
	"github.com/dshills/tandem/internal/conversation"
	"github.com/dshills/tandem/internal/github"
	"github.com/dshills/tandem/internal/input"
	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/logging"
	"github.com/dshills/tandem/internal/metrics"
	"github.com/dshills/tandem/internal/output"
	"github.com/dshills/tandem/internal/providers"
	"github.com/dshills/tandem/internal/review"
	"github.com/dshills/tandem/internal/store"
)

// Shared review flags
var (
	flagSenior       string
	flagJunior       string
	flagMaxRounds    int
	flagSentinel     string
	flagStream       bool
	flagFormat       string
	flagOut          string
	flagFailOn       string
	flagRules        string
	flagMaxFindings  int
	flagNoRedact     bool
	flagNoHistory    bool
	flagMetricsAddr  string
	flagPaths        string
	flagExclude      string
	flagContextLines int
	flagMaxBytes     int
	flagQuiet        bool
)

func addReviewFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagSenior, "senior", "", "Senior backend as provider:model (ollama:<model> or local:<model> for on-device)")
	cmd.Flags().StringVar(&flagJunior, "junior", "", "Junior backend as provider:model")
	cmd.Flags().IntVar(&flagMaxRounds, "max-rounds", -1, "Maximum senior/junior rounds (0 = senior only)")
	cmd.Flags().StringVar(&flagSentinel, "sentinel", "", "Agreement marker the junior emits")
	cmd.Flags().BoolVar(&flagStream, "stream", false, "Stream replies to stderr (default: on when stderr is a terminal)")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format ("+strings.Join(output.Formats, ", ")+")")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "Fail on severity threshold (none, low, medium, high)")
	cmd.Flags().StringVar(&flagRules, "rules", "", "Rules file path")
	cmd.Flags().IntVar(&flagMaxFindings, "max-findings", 0, "Maximum number of findings the senior may report")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Do not save the verdict to the history store")
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus /metrics on this address while the review runs")
	cmd.Flags().StringVar(&flagPaths, "paths", "", "Include file path globs (comma-separated)")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "Exclude file path globs (comma-separated)")
	cmd.Flags().IntVar(&flagContextLines, "context-lines", 0, "Number of context lines in diffs")
	cmd.Flags().IntVar(&flagMaxBytes, "max-bytes", 0, "Maximum input size in bytes")
	cmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "Omit the transcript from text output")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagSenior != "" {
		m["senior"] = flagSenior
	}
	if flagJunior != "" {
		m["junior"] = flagJunior
	}
	if flagMaxRounds >= 0 {
		m["max_rounds"] = strconv.Itoa(flagMaxRounds)
	}
	if flagSentinel != "" {
		m["agreement_sentinel"] = flagSentinel
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagFailOn != "" {
		m["fail_on"] = flagFailOn
	}
	if flagRules != "" {
		m["rules_file"] = flagRules
	}
	if flagContextLines > 0 {
		m["input.context_lines"] = strconv.Itoa(flagContextLines)
	}
	if flagMaxBytes > 0 {
		m["input.max_bytes"] = strconv.Itoa(flagMaxBytes)
	}
	if flagNoRedact {
		m["privacy.redact_secrets"] = "false"
	}
	if flagNoHistory {
		m["history.enabled"] = "false"
	}
	return m
}

func buildInputOpts(cfg config.Config) input.Options {
	opts := input.Options{
		ContextLines: cfg.Input.ContextLines,
		MaxBytes:     cfg.Input.MaxBytes,
		Include:      cfg.Input.Include,
		Exclude:      cfg.Input.Exclude,
		MergeBase:    flagMergeBase,
		Redact:       cfg.Privacy.RedactSecrets,
		RedactPaths:  cfg.Privacy.RedactPaths,
	}
	if flagPaths != "" {
		opts.Include = splitComma(flagPaths)
	}
	if flagExclude != "" {
		opts.Exclude = append(opts.Exclude, splitComma(flagExclude)...)
	}
	return opts
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// streamEnabled resolves --stream: an explicit flag wins, otherwise the config
// value or a terminal on stderr turns streaming on.
func streamEnabled(cmd *cobra.Command, cfg config.Config) bool {
	if f := cmd.Flags().Lookup("stream"); f != nil && f.Changed {
		return flagStream
	}
	return cfg.Stream || term.IsTerminal(int(os.Stderr.Fd()))
}

// session is everything a review command needs once the config is accepted.
type session struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	orch    *conversation.Orchestrator
}

// newSession loads and validates the config, then wires the registry and the
// orchestrator. Errors returned here are usage or config errors.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(buildOverrides())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, &config.Error{Field: "log", Reason: err.Error()}
	}

	rules, err := review.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, &config.Error{Field: "rules_file", Reason: err.Error()}
	}

	m := metrics.New()
	reg, err := providers.BuildRegistry(cfg, nil,
		llm.WithLogger(logger),
		llm.WithAttemptHook(func(p llm.ProviderID, result llm.AttemptResult, elapsed time.Duration) {
			m.RecordAttempt(string(p), string(result), elapsed)
		}),
	)
	if err != nil {
		return nil, err
	}

	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	settings.Rules = rules
	settings.Stream = streamEnabled(cmd, cfg)

	builder := review.Builder{
		Rules:       rules,
		Sentinel:    settings.AgreementSentinel,
		MaxFindings: flagMaxFindings,
	}

	opts := []conversation.Option{
		conversation.WithLogger(logger),
		conversation.WithMetrics(m),
	}
	if settings.Stream {
		opts = append(opts, conversation.WithObserver(newStreamPrinter(cmd.ErrOrStderr())))
	}

	return &session{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		orch:    conversation.New(reg, builder, settings, opts...),
	}, nil
}

// serveMetrics starts the /metrics endpoint when --metrics-addr is set. The
// returned function stops it.
func (s *session) serveMetrics(ctx context.Context) func() {
	if flagMetricsAddr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.metrics.Serve(ctx, flagMetricsAddr); err != nil {
			s.logger.Warn("metrics server stopped", zap.String("addr", flagMetricsAddr), zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// run reviews every input, records and writes the verdicts, and sets the exit
// code. Verdicts are written even when a conversation aborts.
func (s *session) run(ctx context.Context, inputs []review.Input) ([]*review.Verdict, error) {
	defer func() { _ = s.logger.Sync() }()
	stop := s.serveMetrics(ctx)
	defer stop()

	var (
		verdicts []*review.Verdict
		runErr   error
	)
	if len(inputs) == 1 {
		v, err := s.orch.Run(ctx, inputs[0])
		verdicts, runErr = []*review.Verdict{v}, err
	} else {
		verdicts, runErr = conversation.RunBatch(ctx, s.orch, inputs, flagParallel)
	}

	s.saveHistory(verdicts)

	if err := writeVerdicts(verdicts, s.cfg.Format, flagOut); err != nil {
		return verdicts, runtimeErr(fmt.Errorf("writing output: %w", err))
	}
	if runErr != nil {
		return verdicts, runErr
	}

	if failOn(verdicts, s.cfg.FailOn) {
		exitCode = ExitFindings
	}
	return verdicts, nil
}

func (s *session) saveHistory(verdicts []*review.Verdict) {
	if !s.cfg.History.Enabled {
		return
	}
	path, err := s.cfg.HistoryPath()
	if err != nil {
		s.logger.Warn("history disabled", zap.Error(err))
		return
	}
	db, err := store.Open(path)
	if err != nil {
		s.logger.Warn("history disabled", zap.String("path", path), zap.Error(err))
		return
	}
	defer db.Close()

	// Saving must finish even when the review was interrupted.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, v := range verdicts {
		if v == nil {
			continue
		}
		if err := db.Save(ctx, v); err != nil {
			s.logger.Warn("saving verdict", zap.String("conversation", v.ID), zap.Error(err))
		}
	}
}

// writeVerdicts writes all verdicts to one destination, as a single
// document for the machine-readable formats.
func writeVerdicts(verdicts []*review.Verdict, format, outPath string) error {
	w, err := output.GetWriter(format)
	if err != nil {
		return err
	}
	if tw, ok := w.(*output.TextWriter); ok {
		tw.HideTranscript = flagQuiet
	}

	var dst io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		dst = f
	}

	return output.WriteAll(dst, w, verdicts)
}

// failOn reports whether any finding meets the threshold.
func failOn(verdicts []*review.Verdict, threshold string) bool {
	for _, v := range verdicts {
		if v == nil {
			continue
		}
		for _, f := range v.Findings {
			if review.MeetsThreshold(f.Severity, threshold) {
				return true
			}
		}
	}
	return false
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review code with a senior and a junior model",
	Long:  "Run a review conversation between the senior and junior backends. Use subcommands to choose what to review.",
}

var flagParallel int

var reviewFileCmd = &cobra.Command{
	Use:   "file <path>...",
	Short: "Review whole files, one conversation per file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		inputs, err := input.LoadFiles(cmd.Context(), args, buildInputOpts(s.cfg))
		if err != nil {
			return runtimeErr(err)
		}
		_, err = s.run(cmd.Context(), inputs)
		return err
	},
}

var (
	flagStaged    bool
	flagMergeBase bool
)

var reviewDiffCmd = &cobra.Command{
	Use:   "diff [<range>|<sha>]",
	Short: "Review git changes",
	Long: `Review git changes. With no argument the unstaged working tree changes are
reviewed; --staged reviews the index. An argument containing ".." is a
revision range, anything else a single commit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := ""
		if len(args) == 1 {
			spec = args[0]
		}
		if flagStaged {
			if spec != "" {
				return errors.New("--staged cannot be combined with a range or commit")
			}
			spec = "staged"
		}

		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		in, err := input.Load(cmd.Context(), input.Source{Kind: review.KindDiff, Details: spec}, buildInputOpts(s.cfg))
		if err != nil {
			return runtimeErr(err)
		}
		_, err = s.run(cmd.Context(), []review.Input{in})
		return err
	},
}

var (
	flagPost   bool
	flagDryRun bool
)

var reviewPRCmd = &cobra.Command{
	Use:   "pr <owner/repo#N|url|number>",
	Short: "Review a GitHub pull request",
	Long:  "Fetch a pull request diff from GitHub and review it. With --post the findings are posted back as a PR review.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var gh *github.Client
		opts := buildInputOpts(s.cfg)
		if flagPost {
			if gh, err = github.NewClientFromEnv(); err != nil {
				return runtimeErr(err)
			}
			opts.GitHub = gh
		}

		in, err := input.Load(ctx, input.Source{Kind: review.KindPullRequest, Details: args[0]}, opts)
		if err != nil {
			return runtimeErr(err)
		}
		verdicts, err := s.run(ctx, []review.Input{in})
		if err != nil || !flagPost {
			return err
		}
		return postReview(ctx, cmd.ErrOrStderr(), gh, verdicts[0])
	},
}

func postReview(ctx context.Context, w io.Writer, gh *github.Client, v *review.Verdict) error {
	ref, err := github.ParsePRRef(ctx, v.Input.Source.PR, "")
	if err != nil {
		return runtimeErr(err)
	}
	files := make(map[string]bool, len(v.Input.Source.Files))
	for _, f := range v.Input.Source.Files {
		files[f] = true
	}
	rev := github.BuildReview(v, files)

	if flagDryRun {
		fmt.Fprintf(w, "Dry run: %d inline comments for %s, not posting.\n", len(rev.Comments), ref)
		return nil
	}
	fmt.Fprintf(w, "Posting review to %s (%d inline comments)...\n", ref, len(rev.Comments))
	if err := gh.PostReview(ctx, ref, rev); err != nil {
		return runtimeErr(fmt.Errorf("posting review: %w", err))
	}
	return nil
}

func init() {
	reviewCmd.AddCommand(reviewFileCmd)
	reviewCmd.AddCommand(reviewDiffCmd)
	reviewCmd.AddCommand(reviewPRCmd)

	for _, cmd := range []*cobra.Command{reviewFileCmd, reviewDiffCmd, reviewPRCmd} {
		addReviewFlags(cmd)
	}

	reviewFileCmd.Flags().IntVar(&flagParallel, "parallel", 4, "Conversations to run at once")

	reviewDiffCmd.Flags().BoolVar(&flagStaged, "staged", false, "Review staged changes (index vs HEAD)")
	reviewDiffCmd.Flags().BoolVar(&flagMergeBase, "merge-base", true, "Diff a range from its merge base")

	reviewPRCmd.Flags().BoolVar(&flagPost, "post", false, "Post the findings to the pull request as a review")
	reviewPRCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "With --post, build the review but do not send it")
}
