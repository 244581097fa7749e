// Package engine orchestrates standardization runs: it discovers
// (participant, modality) work units, dispatches them to a bounded
// worker pool, and drives each unit through parse, resolve, merge,
// validate, header generation and the atomic write. Units are fault
// isolated: one participant's failure never touches another's
// conversion, and a cancelled unit leaves no partial output behind.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"sensorstd/internal/config"
	"sensorstd/internal/errors"
	"sensorstd/internal/header"
	"sensorstd/internal/infrastructure"
	"sensorstd/internal/merge"
	"sensorstd/internal/parser"
	"sensorstd/internal/roster"
	"sensorstd/internal/schema"
	"sensorstd/internal/writer"
	"sensorstd/pkg/contracts/domain"
)

// Engine converts raw device exports into canonical series files.
type Engine struct {
	cfg       config.Config
	parsers   *parser.Registry
	schemas   *schema.Registry
	roster    *roster.Roster
	validator *schema.Validator
	writer    *writer.Writer
	tracker   *RunTracker
	metrics   *infrastructure.ConversionMetrics
	tracer    trace.Tracer
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Options carries the optional observability collaborators.
type Options struct {
	Metrics *infrastructure.ConversionMetrics
	Tracer  trace.Tracer
}

// New creates a standardization engine. The roster must be fully
// loaded before the engine starts; it is shared read-only across all
// workers.
func New(cfg config.Config, parsers *parser.Registry, schemas *schema.Registry, r *roster.Roster, tracker *RunTracker, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	burst := int(cfg.Engine.FileOpensPerSec)
	if burst < 1 {
		burst = 1
	}
	return &Engine{
		cfg:       cfg,
		parsers:   parsers,
		schemas:   schemas,
		roster:    r,
		validator: schema.NewValidator(logger),
		writer:    writer.NewWriter(logger),
		tracker:   tracker,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Engine.FileOpensPerSec), burst),
		logger:    logger.With(slog.String("component", "engine")),
	}
}

// Run discovers all work units under the configured data root and
// processes them on the worker pool. It returns the aggregate summary;
// per-unit failures are reported there, never as a run error.
func (e *Engine) Run(ctx context.Context) (domain.RunSummary, error) {
	modalities := e.enabledModalities()
	units, err := DiscoverUnits(e.cfg.Paths.DataDir, modalities)
	if err != nil {
		return domain.RunSummary{}, err
	}

	runID := uuid.New().String()
	e.tracker.Start(runID, len(units))
	defer e.tracker.Finish()

	e.logger.InfoContext(ctx, "standardization run started",
		slog.String("run_id", runID),
		slog.Int("units", len(units)),
		slog.Int("workers", e.cfg.Engine.Workers),
		slog.Int("roster_devices", e.roster.Len()))

	jobs := make(chan WorkUnit)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Engine.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.worker(ctx, workerID, jobs)
		}(i)
	}

dispatch:
	for _, unit := range units {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- unit:
		}
	}
	close(jobs)
	wg.Wait()

	summary := e.tracker.Snapshot()
	e.logger.InfoContext(ctx, "standardization run finished",
		slog.String("run_id", runID),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed))
	return summary, ctx.Err()
}

func (e *Engine) enabledModalities() []domain.Modality {
	if len(e.cfg.Engine.Modalities) == 0 {
		return e.parsers.Modalities()
	}
	out := make([]domain.Modality, 0, len(e.cfg.Engine.Modalities))
	for _, m := range e.cfg.Engine.Modalities {
		modality := domain.Modality(m)
		if e.parsers.Has(modality) {
			out = append(out, modality)
		} else {
			e.logger.Warn("configured modality has no registered parser", slog.String("modality", m))
		}
	}
	return out
}

func (e *Engine) worker(ctx context.Context, workerID int, jobs <-chan WorkUnit) {
	logger := e.logger.With(slog.Int("worker_id", workerID))
	for unit := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		result := e.safeConvert(ctx, unit, logger)
		e.tracker.Record(result)
		if e.metrics != nil {
			e.metrics.RecordConversion(ctx, string(unit.Modality), result.Success,
				result.Elapsed.Seconds(), result.RowCount, result.IssueCount)
		}
	}
}

// safeConvert runs one conversion with panic isolation so a bad raw
// file can never take down sibling work units.
func (e *Engine) safeConvert(ctx context.Context, unit WorkUnit, logger *slog.Logger) (result domain.ConversionResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("conversion panicked",
				slog.String("unit_id", unit.ID),
				slog.String("participant_id", unit.ParticipantID),
				slog.Any("panic", r))
			result = domain.ConversionResult{
				ParticipantID: unit.ParticipantID,
				Modality:      unit.Modality,
				Success:       false,
				Error:         fmt.Sprintf("conversion panicked: %v", r),
				Elapsed:       time.Since(start),
			}
		}
	}()

	unitCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.Engine.UnitTimeout > 0 {
		unitCtx, cancel = context.WithTimeout(ctx, e.cfg.Engine.UnitTimeout)
		defer cancel()
	}
	unitCtx = infrastructure.WithTraceID(unitCtx, unit.ID)
	unitLogger := infrastructure.WithComponent(infrastructure.LoggerWithContext(unitCtx), "engine").With(
		slog.String("participant_id", unit.ParticipantID),
		slog.String("modality", string(unit.Modality)))

	if e.metrics != nil {
		e.metrics.ActiveConversions.Add(unitCtx, 1)
		defer e.metrics.ActiveConversions.Add(unitCtx, -1)
	}

	if e.tracer != nil {
		var span trace.Span
		unitCtx, span = e.tracer.Start(unitCtx, "convert",
			trace.WithAttributes(
				attribute.String("participant_id", unit.ParticipantID),
				attribute.String("modality", string(unit.Modality)),
				attribute.Int("raw_files", len(unit.Files)),
			))
		defer func() {
			if !result.Success {
				span.SetStatus(codes.Error, result.Error)
			}
			span.SetAttributes(attribute.Int("rows", result.RowCount), attribute.Int("issues", result.IssueCount))
			span.End()
		}()
	}

	result = e.convert(unitCtx, unit, unitLogger)
	result.Elapsed = time.Since(start)
	return result
}

// convert drives the sequential stages of one work unit. Parsing of
// the unit's files runs concurrently; merge, validation, header
// generation and the write are strictly sequential over the one series
// this unit owns.
func (e *Engine) convert(ctx context.Context, unit WorkUnit, logger *slog.Logger) domain.ConversionResult {
	failed := func(format string, args ...any) domain.ConversionResult {
		msg := fmt.Sprintf(format, args...)
		logger.Error("conversion failed", slog.String("error", msg))
		return domain.ConversionResult{
			ParticipantID: unit.ParticipantID,
			Modality:      unit.Modality,
			Success:       false,
			Error:         msg,
		}
	}

	ms, err := e.schemas.Get(unit.Modality)
	if err != nil {
		return failed("%v", err)
	}
	if mult, ok := e.cfg.Engine.GapMultiples[string(unit.Modality)]; ok && mult > 0 {
		ms.GapMultiple = mult
	}
	p, err := e.parsers.Get(unit.Modality)
	if err != nil {
		return failed("%v", err)
	}

	batches, fileIssues, err := e.parseFiles(ctx, p, unit, logger)
	if err != nil {
		return failed("%v", err)
	}

	resolved, identityIssues := e.resolveBatches(batches, unit, logger)
	fileIssues = append(fileIssues, identityIssues...)

	if len(resolved) == 0 {
		return failed("no releasable data: all %d raw files were skipped or excluded", len(unit.Files))
	}

	releasable := make([]domain.SampleBatch, len(resolved))
	for i, rb := range resolved {
		releasable[i] = rb.batch
	}
	series := merge.NewMerger(ms, logger).Merge(releasable)
	series.ParticipantID = unit.ParticipantID
	series.VisitID = resolved[0].visit.VisitID
	series.DeviceID = resolved[0].batch.DeviceID
	series.Device = resolved[0].batch.Metadata
	series.Issues = append(fileIssues, series.Issues...)

	if err := e.validator.Validate(series); err != nil {
		return failed("%v", err)
	}

	block := header.Build(series, ms)
	dest := writer.OutputPath(e.cfg.Paths.OutputDir, series)
	result, err := e.writer.Write(ctx, series, block, dest)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		infrastructure.WithError(logger, err).Error("conversion failed")
		return result
	}
	return result
}

// parseFiles parses the unit's raw files concurrently. Skippable
// failures (malformed, unsupported) and row-level drops reported by
// the parser become issues; a structural mismatch or cancellation
// aborts the unit.
func (e *Engine) parseFiles(ctx context.Context, p parser.Parser, unit WorkUnit, logger *slog.Logger) ([]domain.SampleBatch, []domain.ValidationIssue, error) {
	batches := make([]*domain.SampleBatch, len(unit.Files))
	issues := make([][]domain.ValidationIssue, len(unit.Files))

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range unit.Files {
		i, ref := i, ref
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return err
			}
			batch, err := p.Parse(gctx, ref)
			if err != nil {
				if errors.FileSkippable(err) {
					kind := domain.IssueMalformedFile
					if stderrors.Is(err, errors.ErrUnsupportedFormat) {
						kind = domain.IssueUnsupportedFormat
					}
					issues[i] = append(issues[i], domain.ValidationIssue{
						Kind:    kind,
						Row:     -1,
						File:    ref.Path,
						Message: err.Error(),
					})
					logger.Warn("raw file skipped",
						slog.String("file", ref.Path),
						slog.String("error", err.Error()))
					return nil
				}
				return err
			}
			batch.FileIndex = i
			batches[i] = batch
			issues[i] = append(issues[i], batch.Issues...)
			if e.metrics != nil {
				e.metrics.FilesParsed.Add(gctx, 1,
					metric.WithAttributes(attribute.String("modality", string(unit.Modality))))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var kept []domain.SampleBatch
	var flat []domain.ValidationIssue
	for i := range unit.Files {
		flat = append(flat, issues[i]...)
		if batches[i] != nil {
			kept = append(kept, *batches[i])
		}
	}
	return kept, flat, nil
}

type resolvedBatch struct {
	batch domain.SampleBatch
	visit domain.ParticipantVisit
}

// resolveBatches attaches participant/visit identity to every parsed
// batch. Batches from unmapped device identifiers, or identifiers the
// roster assigns to a different participant, are excluded with an
// unresolved-identity issue: under the study's identity-disclosure
// policy their samples cannot be released.
func (e *Engine) resolveBatches(batches []domain.SampleBatch, unit WorkUnit, logger *slog.Logger) ([]resolvedBatch, []domain.ValidationIssue) {
	var kept []resolvedBatch
	var issues []domain.ValidationIssue

	for _, b := range batches {
		pv, ok := e.roster.Resolve(b.DeviceID)
		if !ok {
			issues = append(issues, domain.ValidationIssue{
				Kind:    domain.IssueUnresolvedIdentity,
				Row:     -1,
				File:    b.File.Path,
				Message: fmt.Sprintf("device identifier %q not in roster; %d samples excluded", b.DeviceID, len(b.Samples)),
			})
			logger.Warn("excluding samples from unmapped device",
				slog.String("file", b.File.Path),
				slog.String("device_id", b.DeviceID))
			continue
		}
		if pv.ParticipantID != unit.ParticipantID {
			issues = append(issues, domain.ValidationIssue{
				Kind:    domain.IssueUnresolvedIdentity,
				Row:     -1,
				File:    b.File.Path,
				Message: fmt.Sprintf("device identifier %q maps to participant %s, not %s; %d samples excluded", b.DeviceID, pv.ParticipantID, unit.ParticipantID, len(b.Samples)),
			})
			logger.Warn("excluding samples mapped to a different participant",
				slog.String("file", b.File.Path),
				slog.String("device_id", b.DeviceID),
				slog.String("mapped_participant", pv.ParticipantID))
			continue
		}
		kept = append(kept, resolvedBatch{batch: b, visit: pv})
	}

	return kept, issues
}
