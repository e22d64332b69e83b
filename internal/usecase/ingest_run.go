package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trafficlens/trafficlens/internal/adapter/metrics"
	"github.com/trafficlens/trafficlens/internal/adapter/pii"
	"github.com/trafficlens/trafficlens/internal/classify"
	"github.com/trafficlens/trafficlens/internal/denylist"
	"github.com/trafficlens/trafficlens/internal/domain"
	"github.com/trafficlens/trafficlens/internal/enrich"
	"github.com/trafficlens/trafficlens/internal/signal"
)

// RunState is the coordinator's position in the per-run state machine.
type RunState string

const (
	StateIdle           RunState = "IDLE"
	StateResolveCursor  RunState = "RESOLVE_CURSOR"
	StateExtract        RunState = "EXTRACT"
	StateFilter         RunState = "FILTER"
	StateEnrichClassify RunState = "ENRICH_CLASSIFY"
	StatePersist        RunState = "PERSIST"
	StateAdvanceCursor  RunState = "ADVANCE_CURSOR"
	StateFailed         RunState = "FAILED"
)

const (
	defaultBatchSize        = 500
	defaultFirstRunLookback = time.Hour
)

// ErrConcurrentRun is returned when another run advanced the cursor while
// this one was in flight. Best-effort guard, not a true lock.
var ErrConcurrentRun = errors.New("cursor advanced concurrently by another run")

// FilterRules are the static exclusions applied before enrichment.
type FilterRules struct {
	// OperatorAddresses drops traffic from operator/home addresses.
	OperatorAddresses []string
	// ExcludedSites drops traffic for sites outside the tracked set.
	ExcludedSites []string
	// NoisePatterns drops pre-classified scanner noise by path substring,
	// before any enrichment cost is paid.
	NoisePatterns []string
}

// RunReport summarizes one ingestion run.
type RunReport struct {
	RunID          string
	State          RunState
	Skipped        bool
	Extracted      int
	Filtered       int
	Malformed      int
	Persisted      int
	CursorAdvanced bool
	Elapsed        time.Duration
}

// IngestRunParams wires the coordinator's collaborators. Source, Store and
// Engine are required; the rest default to no-ops or sane values.
type IngestRunParams struct {
	Source    domain.LogSource
	Store     domain.EventStore
	Lock      domain.RunLock
	Denylist  *denylist.Cache
	Geo       *enrich.GeoResolver
	NetOrigin *enrich.NetOriginResolver
	Signals   *signal.Extractor
	Engine    *classify.Engine
	Redactor  *pii.Redactor
	Filters   FilterRules
	Metrics   *metrics.PipelineMetrics
	Logger    *slog.Logger

	BatchSize        int
	FirstRunLookback time.Duration
}

// IngestRunUseCase drives one ingestion iteration: resolve the resume point,
// pull new records, filter, enrich, classify, persist in batches, advance the
// cursor. The cursor advances only after every batch has committed, so a
// crashed or failed run is always safe to retry in full from the previous
// cursor.
type IngestRunUseCase struct {
	source    domain.LogSource
	store     domain.EventStore
	lock      domain.RunLock
	deny      *denylist.Cache
	geo       *enrich.GeoResolver
	netOrigin *enrich.NetOriginResolver
	signals   *signal.Extractor
	engine    *classify.Engine
	redactor  *pii.Redactor
	filters   filterRules
	metrics   *metrics.PipelineMetrics
	logger    *slog.Logger

	batchSize        int
	firstRunLookback time.Duration
}

// filterRules is FilterRules with the lists pre-indexed.
type filterRules struct {
	operatorAddresses map[string]struct{}
	excludedSites     map[string]struct{}
	noisePatterns     []string
}

// NewIngestRunUseCase creates the coordinator.
func NewIngestRunUseCase(p IngestRunParams) *IngestRunUseCase {
	if p.Lock == nil {
		p.Lock = domain.NopRunLock{}
	}
	if p.Signals == nil {
		p.Signals = signal.NewExtractor(nil)
	}
	if p.Engine == nil {
		p.Engine = classify.New(classify.Config{})
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.FirstRunLookback <= 0 {
		p.FirstRunLookback = defaultFirstRunLookback
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	return &IngestRunUseCase{
		source:    p.Source,
		store:     p.Store,
		lock:      p.Lock,
		deny:      p.Denylist,
		geo:       p.Geo,
		netOrigin: p.NetOrigin,
		signals:   p.Signals,
		engine:    p.Engine,
		redactor:  p.Redactor,
		filters:   indexFilters(p.Filters),
		metrics:   p.Metrics,
		logger:    p.Logger.With("component", "ingest_run"),

		batchSize:        p.BatchSize,
		firstRunLookback: p.FirstRunLookback,
	}
}

func indexFilters(f FilterRules) filterRules {
	rules := filterRules{
		operatorAddresses: make(map[string]struct{}, len(f.OperatorAddresses)),
		excludedSites:     make(map[string]struct{}, len(f.ExcludedSites)),
		noisePatterns:     f.NoisePatterns,
	}
	for _, a := range f.OperatorAddresses {
		rules.operatorAddresses[a] = struct{}{}
	}
	for _, s := range f.ExcludedSites {
		rules.excludedSites[strings.ToLower(s)] = struct{}{}
	}
	return rules
}

// Run executes one full ingestion iteration. A held lock is a clean skip. On
// any failure the cursor is untouched and the same window is re-extracted by
// the next run; the store does not deduplicate, so a crash between PERSIST
// and ADVANCE_CURSOR can produce duplicate rows (accepted limitation).
func (uc *IngestRunUseCase) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: uuid.NewString(), State: StateIdle}
	start := time.Now()
	defer func() {
		report.Elapsed = time.Since(start)
		uc.observeRun(report)
	}()

	release, err := uc.lock.Acquire(ctx)
	if errors.Is(err, domain.ErrLockHeld) {
		uc.logger.Info("another ingestion run is in flight, skipping", "run_id", report.RunID)
		report.Skipped = true
		return report, nil
	}
	if err != nil {
		return uc.fail(report, StateIdle, err)
	}
	defer release()

	log := uc.logger.With("run_id", report.RunID)

	// RESOLVE_CURSOR
	report.State = StateResolveCursor
	resolved, err := uc.store.LatestCursor(ctx)
	if err != nil {
		return uc.fail(report, StateResolveCursor, err)
	}
	since := time.Now().Add(-uc.firstRunLookback)
	if resolved != nil {
		since = resolved.LastProcessedTimestamp
	} else {
		log.Info("no cursor found, first run", "lookback", uc.firstRunLookback)
	}

	// EXTRACT
	report.State = StateExtract
	records, err := uc.source.FetchSince(ctx, since)
	if err != nil {
		return uc.fail(report, StateExtract, err)
	}
	report.Extracted = len(records)
	if uc.metrics != nil {
		uc.metrics.RecordsExtracted.Add(float64(len(records)))
	}
	if len(records) == 0 {
		log.Debug("no new records", "since", since)
		report.State = StateIdle
		return report, nil
	}

	// FILTER
	report.State = StateFilter
	var surviving []domain.RawLogRecord
	for _, rec := range records {
		if rec.ClientAddress == "" || rec.Timestamp.IsZero() {
			report.Malformed++
			continue
		}
		if filter, drop := uc.shouldDrop(ctx, rec); drop {
			report.Filtered++
			if uc.metrics != nil {
				uc.metrics.RecordsFiltered.WithLabelValues(filter).Inc()
			}
			continue
		}
		surviving = append(surviving, rec)
	}
	if uc.metrics != nil {
		uc.metrics.RecordsMalformed.Add(float64(report.Malformed))
		if uc.deny != nil {
			uc.metrics.DenylistSize.Set(float64(uc.deny.Size()))
		}
	}

	// ENRICH_CLASSIFY
	report.State = StateEnrichClassify
	aggregates := sessionAggregates(surviving)
	events := make([]domain.NormalizedEvent, 0, len(surviving))
	var maxTS time.Time
	var lastID string
	for _, rec := range surviving {
		ev := domain.NewNormalizedEvent(rec)
		uc.geo.Enrich(&ev)
		uc.netOrigin.Enrich(&ev)
		uc.signals.Enrich(&ev)

		agg := aggregates[rec.ClientAddress]
		ev.ApplyClassification(uc.engine.Classify(ev, &agg))
		// Scrub after classification so header signals see the real values.
		uc.redactor.Scrub(&ev)

		if uc.metrics != nil {
			uc.metrics.EventsByCategory.WithLabelValues(string(ev.Category)).Inc()
		}
		events = append(events, ev)

		if rec.Timestamp.After(maxTS) {
			maxTS = rec.Timestamp
			lastID = rec.ID
		}
	}

	// Filtered and malformed records never advance the cursor on their own.
	if len(events) == 0 {
		log.Debug("no records survived filtering", "filtered", report.Filtered, "malformed", report.Malformed)
		report.State = StateIdle
		return report, nil
	}

	// PERSIST
	report.State = StatePersist
	for from := 0; from < len(events); from += uc.batchSize {
		to := from + uc.batchSize
		if to > len(events) {
			to = len(events)
		}
		if err := uc.store.WriteEventBatch(ctx, events[from:to]); err != nil {
			return uc.fail(report, StatePersist, err)
		}
		report.Persisted = to
	}
	if uc.metrics != nil {
		uc.metrics.EventsPersisted.Add(float64(report.Persisted))
	}

	// ADVANCE_CURSOR
	report.State = StateAdvanceCursor
	if err := uc.guardConcurrentRun(ctx, resolved); err != nil {
		return uc.fail(report, StateAdvanceCursor, err)
	}
	cursor := domain.IngestionCursor{
		LastProcessedTimestamp: maxTS,
		LastRecordID:           lastID,
		RecordsProcessed:       report.Persisted,
		DurationMs:             time.Since(start).Milliseconds(),
		CreatedAt:              time.Now().UTC(),
	}
	if err := uc.store.AppendCursor(ctx, cursor); err != nil {
		return uc.fail(report, StateAdvanceCursor, err)
	}
	report.CursorAdvanced = true
	report.State = StateIdle

	log.Info("ingestion run complete",
		"extracted", report.Extracted, "filtered", report.Filtered,
		"malformed", report.Malformed, "persisted", report.Persisted,
		"cursor", maxTS, "elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// shouldDrop applies the pre-enrichment filters, returning the filter name.
func (uc *IngestRunUseCase) shouldDrop(ctx context.Context, rec domain.RawLogRecord) (string, bool) {
	if uc.deny != nil && uc.deny.IsBanned(ctx, rec.ClientAddress) {
		return "denylist", true
	}
	if _, ok := uc.filters.operatorAddresses[rec.ClientAddress]; ok {
		return "operator", true
	}
	if _, ok := uc.filters.excludedSites[strings.ToLower(rec.Host)]; ok {
		return "site", true
	}
	for _, p := range uc.filters.noisePatterns {
		if strings.Contains(rec.URI, p) {
			return "noise", true
		}
	}
	return "", false
}

// guardConcurrentRun re-reads the latest cursor and refuses to advance when
// someone else appended one since this run resolved its own.
func (uc *IngestRunUseCase) guardConcurrentRun(ctx context.Context, resolved *domain.IngestionCursor) error {
	latest, err := uc.store.LatestCursor(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		return nil
	}
	if resolved == nil || latest.CreatedAt.After(resolved.CreatedAt) {
		return ErrConcurrentRun
	}
	return nil
}

func (uc *IngestRunUseCase) fail(report *RunReport, state RunState, err error) (*RunReport, error) {
	report.State = StateFailed
	uc.logger.Error("ingestion run failed", "run_id", report.RunID, "state", string(state), "error", err)
	return report, fmt.Errorf("run failed in %s: %w", state, err)
}

func (uc *IngestRunUseCase) observeRun(report *RunReport) {
	if uc.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case report.Skipped:
		outcome = "skipped_lock"
	case report.State == StateFailed:
		outcome = "failed"
	case report.Extracted == 0:
		outcome = "empty"
	}
	uc.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	uc.metrics.RunDuration.Observe(report.Elapsed.Seconds())
}

// minAggregateWindow floors the per-address observation window. Without it a
// single request would compute as one request per second and trip the human
// gate's rate check.
const minAggregateWindow = time.Minute

// sessionAggregates derives a trailing-window request count per client
// address from the extracted window itself.
func sessionAggregates(records []domain.RawLogRecord) map[string]domain.SessionAggregate {
	type window struct {
		count       int
		first, last time.Time
	}
	windows := make(map[string]window)
	for _, rec := range records {
		w, ok := windows[rec.ClientAddress]
		if !ok {
			w = window{first: rec.Timestamp, last: rec.Timestamp}
		}
		w.count++
		if rec.Timestamp.Before(w.first) {
			w.first = rec.Timestamp
		}
		if rec.Timestamp.After(w.last) {
			w.last = rec.Timestamp
		}
		windows[rec.ClientAddress] = w
	}

	aggregates := make(map[string]domain.SessionAggregate, len(windows))
	for addr, w := range windows {
		seconds := w.last.Sub(w.first).Seconds()
		if seconds < minAggregateWindow.Seconds() {
			seconds = minAggregateWindow.Seconds()
		}
		aggregates[addr] = domain.SessionAggregate{RequestCount: w.count, WindowSeconds: seconds}
	}
	return aggregates
}
