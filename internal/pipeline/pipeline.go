package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/logger"
	"github.com/dvloznov/statement-converter/internal/metrics"
	"github.com/dvloznov/statement-converter/internal/pdfdoc"
	"github.com/dvloznov/statement-converter/internal/session"
	"github.com/dvloznov/statement-converter/internal/usage"
)

// Converter drives a session from file selection to merged transactions.
type Converter struct {
	prober   Prober
	pipeline *Pipeline
	advisor  Advisor
	usage    UsageGate
	metrics  *metrics.Metrics
	workers  int
}

// Option configures a Converter.
type Option func(*Converter)

// WithUsageGate installs the billing gate. Without one every run is allowed.
func WithUsageGate(g UsageGate) Option {
	return func(c *Converter) { c.usage = g }
}

// WithMetrics records file and conversion outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Converter) { c.metrics = m }
}

// WithWorkers sets how many files are processed at once. Results are merged
// in file order regardless of the count.
func WithWorkers(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewConverter wires a Converter. advisor may be nil to skip insights.
func NewConverter(prober Prober, filePipeline *Pipeline, advisor Advisor, opts ...Option) *Converter {
	c := &Converter{
		prober:   prober,
		pipeline: filePipeline,
		advisor:  advisor,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectFiles tracks the PDF files on s and probes each one concurrently.
// It returns once every file has a probe result. The warning is non-empty
// when non-PDF files were dropped.
func (c *Converter) SelectFiles(ctx context.Context, s *session.Session, files []session.StatementFile) ([]session.FileState, string, error) {
	log := logger.FromContext(ctx)

	tracked, warning, err := s.SelectFiles(files)
	if err != nil {
		return nil, warning, err
	}

	tracker := s.Tracker()
	var wg sync.WaitGroup
	for _, fs := range tracked {
		wg.Add(1)
		go func(fs session.FileState) {
			defer wg.Done()
			c.probeFile(ctx, tracker, fs)
		}(fs)
	}
	wg.Wait()

	log.Info().
		Str("session_id", s.ID).
		Int("files", len(tracked)).
		Bool("ignored_non_pdf", warning != "").
		Msg("Files selected")

	return tracker.Files(), warning, nil
}

func (c *Converter) probeFile(ctx context.Context, tracker *session.Tracker, fs session.FileState) {
	log := logger.FromContext(ctx)

	res := c.prober.Probe(fs.File.Data)
	var err error
	switch res.Kind {
	case pdfdoc.ProbeReady:
		err = tracker.SetStatus(fs.ID, session.StatusReady, "")
	case pdfdoc.ProbeNeedsPassword:
		err = tracker.MarkEncrypted(fs.ID)
	default:
		msg := res.Reason
		if msg == "" {
			msg = MsgUnreadablePDF
		}
		log.Warn().Str("file_id", fs.ID).Str("reason", res.Reason).Msg("Failed to probe PDF")
		err = tracker.SetStatus(fs.ID, session.StatusError, msg)
	}
	if err != nil {
		log.Warn().Err(err).Str("file_id", fs.ID).Msg("File disappeared during probe")
	}
}

// Check reports whether Convert would start for s right now. It returns
// ErrQuotaExceeded when the usage gate denies the run and ErrNotReady when
// no file can be converted yet. The session is not modified.
func (c *Converter) Check(ctx context.Context, s *session.Session) error {
	if c.usage != nil {
		ok, err := c.usage.CanConvert(ctx, s.UserID)
		if err != nil {
			return fmt.Errorf("Check: usage check: %w", err)
		}
		if !ok {
			return ErrQuotaExceeded
		}
	}
	if !s.Tracker().IsReady() {
		return ErrNotReady
	}
	return nil
}

// fileResult is the outcome of one file in a run.
type fileResult struct {
	file         session.FileState
	transactions []domain.Transaction
	err          error
}

// Convert runs every convertible file of s through the file pipeline and
// moves the session to success or error. It refuses to start, leaving the
// session untouched, when the usage gate denies the run (ErrQuotaExceeded)
// or the files are not ready (ErrNotReady). Per-file failures never make
// Convert return an error; they are recorded on the file and session.
func (c *Converter) Convert(ctx context.Context, s *session.Session) error {
	log := logger.FromContext(ctx).With().Str("session_id", s.ID).Logger()
	ctx = logger.WithContext(ctx, log)

	if err := c.Check(ctx, s); err != nil {
		return err
	}

	tracker := s.Tracker()
	if err := s.Begin(); err != nil {
		return fmt.Errorf("Convert: %w", err)
	}

	var queue []session.FileState
	for _, fs := range tracker.Files() {
		if fs.Status == session.StatusError || fs.Status == session.StatusSuccess {
			continue
		}
		if !fs.Convertible() {
			continue
		}
		queue = append(queue, fs)
	}

	log.Info().Int("files", len(queue)).Int("workers", c.workers).Msg("Starting conversion")

	results := c.runFiles(ctx, tracker, queue)

	var all []domain.Transaction
	var failures []string
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", r.file.Name(), UserMessage(r.err)))
			continue
		}
		all = append(all, r.transactions...)
	}

	if len(all) == 0 {
		msg := failureMessage(failures, tracker.Files())
		log.Warn().Int("failed_files", len(failures)).Msg("Conversion produced no transactions")
		c.metrics.Conversion("error", 0)
		if err := s.Fail(msg); err != nil {
			return fmt.Errorf("Convert: %w", err)
		}
		return nil
	}

	domain.SortByDate(all)

	if c.advisor != nil {
		if insights, err := c.advisor.Insights(ctx, all); err != nil {
			log.Warn().Err(err).Msg("Could not generate AI insights")
		} else {
			s.SetInsights(insights)
		}
	}

	c.recordUsage(ctx, s, all)

	c.metrics.Conversion("success", len(all))
	log.Info().
		Int("transactions", len(all)).
		Int("failed_files", len(failures)).
		Msg("Conversion finished")

	if err := s.Succeed(all); err != nil {
		return fmt.Errorf("Convert: %w", err)
	}
	return nil
}

// runFiles processes queue with up to c.workers files in flight and returns
// results in queue order.
func (c *Converter) runFiles(ctx context.Context, tracker *session.Tracker, queue []session.FileState) []fileResult {
	results := make([]fileResult, len(queue))

	if c.workers <= 1 {
		for i, fs := range queue {
			results[i] = c.processFile(ctx, tracker, fs)
		}
		return results
	}

	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for i, fs := range queue {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, fs session.FileState) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = c.processFile(ctx, tracker, fs)
		}(i, fs)
	}
	wg.Wait()
	return results
}

func (c *Converter) processFile(ctx context.Context, tracker *session.Tracker, fs session.FileState) fileResult {
	log := logger.FromContext(ctx).With().Str("file_id", fs.ID).Logger()
	ctx = logger.WithContext(ctx, log)

	if err := ctx.Err(); err != nil {
		_ = tracker.SetStatus(fs.ID, session.StatusError, err.Error())
		c.metrics.FileOutcome(string(session.StatusError))
		return fileResult{file: fs, err: err}
	}

	if err := tracker.SetStatus(fs.ID, session.StatusProcessing, ""); err != nil {
		return fileResult{file: fs, err: err}
	}

	run := &FileRun{File: fs}
	if err := c.pipeline.Execute(ctx, run); err != nil {
		msg := UserMessage(err)
		log.Error().Err(err).Str("file", fs.Name()).Msg("Conversion failed for file")

		_ = tracker.SetStatus(fs.ID, session.StatusError, msg)
		c.metrics.FileOutcome(string(session.StatusError))
		return fileResult{file: fs, err: err}
	}

	_ = tracker.SetStatus(fs.ID, session.StatusSuccess, "")
	c.metrics.FileOutcome(string(session.StatusSuccess))
	return fileResult{file: fs, transactions: run.Transactions}
}

// failureMessage picks the session error for a run without transactions.
func failureMessage(failures []string, files []session.FileState) string {
	if len(failures) > 0 {
		return MsgProcessingFailedPrefix + strings.Join(failures, "\n- ")
	}
	for _, fs := range files {
		if fs.Status == session.StatusError {
			return MsgNoTransactionsExtracted
		}
	}
	return MsgNoTransactionsFound
}

// recordUsage stores the conversion in the usage ledger. Failures are logged
// and never affect the session outcome.
func (c *Converter) recordUsage(ctx context.Context, s *session.Session, txs []domain.Transaction) {
	if c.usage == nil {
		return
	}
	log := logger.FromContext(ctx)

	files := s.Tracker().Files()
	names := make([]string, len(files))
	for i, fs := range files {
		names[i] = fs.Name()
	}

	err := c.usage.RecordConversion(ctx, usage.Record{
		UserID:           s.UserID,
		SessionID:        s.ID,
		Filenames:        names,
		TransactionCount: len(txs),
		Status:           usage.StatusSuccess,
	})
	if err != nil {
		log.Error().Err(err).Msg("Error updating usage")
	}
}

// PlanGoal asks the advisor for a savings plan over the session's
// transactions and stores it on the session. Model failures are returned
// so the caller can retry.
func (c *Converter) PlanGoal(ctx context.Context, s *session.Session, goal domain.GoalInput) (*domain.GoalPlan, error) {
	if c.advisor == nil {
		return nil, errors.New("PlanGoal: no advisor configured")
	}
	if err := goal.Validate(); err != nil {
		return nil, err
	}
	if st := s.State(); st != session.StateSuccess {
		return nil, fmt.Errorf("PlanGoal: %w: session is %s", session.ErrInvalidTransition, st)
	}

	plan, err := c.advisor.GoalPlan(ctx, s.Transactions(), goal)
	if err != nil {
		return nil, err
	}
	if err := s.SetGoalPlan(plan); err != nil {
		return nil, fmt.Errorf("PlanGoal: %w", err)
	}
	return plan, nil
}
