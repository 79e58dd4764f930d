package crawl

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oliveyoung-crawler/internal/progress"
)

// DefaultMaxConcurrent bounds the worker pool when no value is configured.
const DefaultMaxConcurrent = 3

// Options controls a single orchestrator run.
type Options struct {
	MaxConcurrent int
	BaseURL       string
	IDMarker      string
	// Resume seeds the run from the checkpoint store and skips identifiers
	// already recorded there.
	Resume bool
	// RetryFailedOnResume removes error-status entries from the processed
	// set at load time so a resumed run re-fetches them.
	RetryFailedOnResume bool
	// CheckpointEvery flushes the checkpoint after this many completions.
	CheckpointEvery int
}

// Orchestrator drives the worker pool over the identifier sequence: it
// derives URLs, waits for throttle admission, fetches, classifies, and
// records outcomes. Checkpoint state is mutated only by the completion loop,
// a single goroutine, even though fetch/classify work runs in parallel.
type Orchestrator struct {
	fetcher     Fetcher
	throttle    *Throttle
	checkpoints CheckpointStore
	results     ResultSink
	emitter     progress.Emitter
	clock       Clock
	logger      *zap.Logger
	opts        Options
}

// NewOrchestrator constructs an Orchestrator. The fetcher and checkpoint
// store are required; throttle, result sink, and emitter may be nil.
func NewOrchestrator(
	fetcher Fetcher,
	throttle *Throttle,
	checkpoints CheckpointStore,
	results ResultSink,
	emitter progress.Emitter,
	clock Clock,
	logger *zap.Logger,
	opts Options,
) *Orchestrator {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.IDMarker == "" {
		opts.IDMarker = DefaultIDMarker
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = 1
	}
	return &Orchestrator{
		fetcher:     fetcher,
		throttle:    throttle,
		checkpoints: checkpoints,
		results:     results,
		emitter:     emitter,
		clock:       clock,
		logger:      logger,
		opts:        opts,
	}
}

// Run processes the identifier sequence and returns final statistics. Counts
// are reported even when ctx is canceled mid-run; per-identifier failures
// never abort the run. The checkpoint is flushed before Run returns so a
// subsequent resumed run picks up exactly the unprocessed remainder.
func (o *Orchestrator) Run(ctx context.Context, ids []string) (RunStats, error) {
	state := o.loadState(ctx)
	if state.RunID == "" {
		state.RunID = uuid.NewString()
	}
	pending := o.pendingTasks(ids, &state)

	stats := state.Stats
	if stats.StartedAt.IsZero() {
		stats.StartedAt = o.clock.Now()
	}
	stats.Total = len(state.Processed) + len(pending)
	state.Stats = stats

	o.logger.Info("crawl run starting",
		zap.String("run_id", state.RunID),
		zap.Int("total", stats.Total),
		zap.Int("already_processed", len(state.Processed)),
		zap.Int("pending", len(pending)),
	)
	o.emit(progress.Event{
		RunID: state.RunID,
		TS:    o.clock.Now(),
		Stage: progress.StageRunStart,
	})

	if len(pending) > 0 {
		o.runPool(ctx, pending, &state, &stats)
	}

	stats.FinishedAt = o.clock.Now()
	state.Stats = stats
	state.UpdatedAt = stats.FinishedAt
	o.saveState(ctx, state)
	o.writeResults(ctx, state)

	stage := progress.StageRunDone
	if ctx.Err() != nil {
		stage = progress.StageRunCanceled
	}
	o.emit(progress.Event{
		RunID: state.RunID,
		TS:    stats.FinishedAt,
		Stage: stage,
		Dur:   stats.FinishedAt.Sub(stats.StartedAt),
	})
	o.logger.Info("crawl run finished",
		zap.String("run_id", state.RunID),
		zap.Int("total", stats.Total),
		zap.Int("success", stats.Success),
		zap.Int("failed", stats.Failed),
		zap.Bool("interrupted", ctx.Err() != nil),
	)
	return stats, nil
}

// runPool fans pending tasks out to workers and consumes their outcomes in
// the single-writer completion loop.
func (o *Orchestrator) runPool(ctx context.Context, pending []Task, state *State, stats *RunStats) {
	tasks := make(chan Task)
	outcomes := make(chan ProductRecord)

	var wg sync.WaitGroup
	for i := 0; i < o.opts.MaxConcurrent; i++ {
		wg.Add(1)
		go o.worker(ctx, tasks, outcomes, &wg)
	}

	go func() {
		defer close(tasks)
		for _, task := range pending {
			select {
			case tasks <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	completions := 0
	for rec := range outcomes {
		state.Records = append(state.Records, rec)
		state.Processed[rec.ProductID] = rec.Status
		if rec.Status == StatusError {
			stats.Failed++
		} else {
			stats.Success++
		}
		state.Stats = *stats
		state.UpdatedAt = o.clock.Now()

		completions++
		if completions%o.opts.CheckpointEvery == 0 {
			o.saveState(ctx, *state)
		}

		o.emit(progress.Event{
			RunID:      state.RunID,
			TS:         o.clock.Now(),
			Stage:      progress.StageTaskDone,
			ProductID:  rec.ProductID,
			Status:     string(rec.Status),
			StatusCode: rec.StatusCode,
			Dur:        secondsToDuration(rec.CrawlTime),
		})
		o.logger.Info("product classified",
			zap.String("product_id", rec.ProductID),
			zap.String("status", string(rec.Status)),
			zap.Int("status_code", rec.StatusCode),
			zap.Float64("crawl_time", rec.CrawlTime),
		)
	}
}

func (o *Orchestrator) worker(ctx context.Context, tasks <-chan Task, outcomes chan<- ProductRecord, wg *sync.WaitGroup) {
	defer wg.Done()
	for task := range tasks {
		if ctx.Err() != nil {
			return
		}
		rec, ok := o.process(ctx, task)
		if !ok {
			continue
		}
		outcomes <- rec
	}
}

// process executes one task end to end. The bool result is false when the
// task was abandoned due to cancellation; an abandoned identifier stays out
// of the processed set so a resumed run retries it.
func (o *Orchestrator) process(ctx context.Context, task Task) (ProductRecord, bool) {
	if o.throttle != nil {
		release, err := o.throttle.Admit(ctx)
		if err != nil {
			return ProductRecord{}, false
		}
		defer release()
	}

	result, err := o.fetcher.Fetch(ctx, task.URL)
	completedAt := o.clock.Now().Format(TimestampLayout)
	if err != nil {
		if ctx.Err() != nil {
			return ProductRecord{}, false
		}
		o.logger.Warn("fetch failed",
			zap.String("product_id", task.ProductID),
			zap.String("url", task.URL),
			zap.Error(err),
		)
		return ProductRecord{
			ProductID:  task.ProductID,
			URL:        task.URL,
			Status:     StatusError,
			StatusCode: result.StatusCode,
			CrawlTime:  result.Elapsed.Seconds(),
			Timestamp:  completedAt,
		}, true
	}

	verdict := Classify(result)
	return ProductRecord{
		ProductID:     task.ProductID,
		URL:           task.URL,
		Title:         verdict.Title,
		Status:        verdict.Status,
		SoldOutReason: verdict.Reason,
		StatusCode:    result.StatusCode,
		CrawlTime:     result.Elapsed.Seconds(),
		Timestamp:     completedAt,
	}, true
}

// pendingTasks validates, dedupes, and filters out already-processed
// identifiers, producing the work sequence with each element dispatched
// exactly once.
func (o *Orchestrator) pendingTasks(ids []string, state *State) []Task {
	if state.Processed == nil {
		state.Processed = make(map[string]ProductStatus)
	}
	if o.opts.RetryFailedOnResume {
		o.rearmFailed(state)
	}

	seen := make(map[string]struct{}, len(ids))
	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if err := ValidateIdentifier(id, o.opts.IDMarker); err != nil {
			o.logger.Warn("skipping malformed identifier", zap.String("id", id), zap.Error(err))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, done := state.Processed[id]; done {
			continue
		}
		tasks = append(tasks, Task{
			ProductID: id,
			URL:       ProductURL(o.opts.BaseURL, id),
		})
	}
	return tasks
}

// rearmFailed drops error-status outcomes from the checkpoint so they are
// re-fetched by this run. Counters are adjusted to keep the
// success+failed == processed invariant.
func (o *Orchestrator) rearmFailed(state *State) {
	kept := state.Records[:0]
	for _, rec := range state.Records {
		if rec.Status == StatusError {
			delete(state.Processed, rec.ProductID)
			state.Stats.Failed--
			continue
		}
		kept = append(kept, rec)
	}
	state.Records = kept
}

func (o *Orchestrator) loadState(ctx context.Context) State {
	if !o.opts.Resume || o.checkpoints == nil {
		return State{}
	}
	state, err := o.checkpoints.Load(ctx)
	if err != nil {
		o.logger.Warn("checkpoint load failed, starting fresh", zap.Error(err))
		return State{}
	}
	if !state.Empty() {
		o.logger.Info("resuming from checkpoint",
			zap.String("run_id", state.RunID),
			zap.Int("processed", len(state.Processed)),
		)
	}
	return state
}

// saveState flushes the checkpoint. Failure is surfaced as a warning; the
// in-memory state stays authoritative for this process. The flush uses a
// cancellation-free context so an interrupted run can still persist.
func (o *Orchestrator) saveState(ctx context.Context, state State) {
	if o.checkpoints == nil {
		return
	}
	if err := o.checkpoints.Save(context.WithoutCancel(ctx), state); err != nil {
		o.logger.Warn("checkpoint save failed", zap.Error(err))
	}
}

func (o *Orchestrator) writeResults(ctx context.Context, state State) {
	if o.results == nil {
		return
	}
	doc := BuildDocument(state, o.clock.Now())
	if err := o.results.Write(context.WithoutCancel(ctx), doc); err != nil {
		o.logger.Warn("result write failed", zap.Error(err))
	}
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(evt)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
