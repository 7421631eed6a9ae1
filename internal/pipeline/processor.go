package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/observability"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/store"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by a refresh that finished after Close. Its result is
// discarded without touching the store.
var ErrClosed = errors.New("processor closed")

// Source fetches up to limit raw hotspot records.
type Source interface {
	Fetch(ctx context.Context, limit int) ([]domain.RawFireRecord, error)
}

// Fetcher is the data source capability a refresh invokes.
type Fetcher func(ctx context.Context) ([]domain.RawFireRecord, error)

// FromSource binds a Source and a record limit into a Fetcher.
func FromSource(src Source, limit int) Fetcher {
	return func(ctx context.Context) ([]domain.RawFireRecord, error) {
		return src.Fetch(ctx, limit)
	}
}

// CellDecoder converts a cell id into its center coordinate.
type CellDecoder interface {
	Decode(cellID string) (domain.Geo, error)
}

// CellDecoderFunc adapts a function to CellDecoder.
type CellDecoderFunc func(cellID string) (domain.Geo, error)

func (f CellDecoderFunc) Decode(cellID string) (domain.Geo, error) { return f(cellID) }

// Publisher receives every snapshot after it has been installed in the store.
type Publisher interface {
	Publish(ctx context.Context, snap domain.Snapshot) error
}

// Result describes one successful refresh.
// Fetched == len(Detections) + Dropped + Collapsed.
type Result struct {
	Generation uint64
	Detections []domain.FireDetection
	Fetched    int
	Dropped    int
	Collapsed  int
}

// Degraded reports whether any records were dropped.
func (r Result) Degraded() bool { return r.Dropped > 0 }

// Option configures a Processor.
type Option func(*Processor)

// WithDecoder replaces the H3 cell decoder.
func WithDecoder(d CellDecoder) Option {
	return func(p *Processor) { p.decoder = d }
}

// WithPublisher forwards installed snapshots to pub.
func WithPublisher(pub Publisher) Option {
	return func(p *Processor) { p.publisher = pub }
}

// Processor turns fetched hotspot records into map detections and is the only
// writer of its EntityStore.
type Processor struct {
	store     *store.EntityStore
	decoder   CellDecoder
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics

	group singleflight.Group
	ready atomic.Bool

	life context.Context
	stop context.CancelFunc

	mu         sync.Mutex // guards closed and generation
	closed     bool
	generation uint64
}

// New creates a Processor that installs snapshots into s.
func New(s *store.EntityStore, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Processor {
	life, stop := context.WithCancel(context.Background())
	p := &Processor{
		store:   s,
		decoder: CellDecoderFunc(domain.DecodeCell),
		logger:  logger,
		metrics: metrics,
		life:    life,
		stop:    stop,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Refresh fetches, decodes, and classifies a batch and swaps it into the
// store. A call made while another refresh is in flight waits for and shares
// that refresh's outcome. On fetch failure the error wraps domain.ErrDataSource
// and the store keeps its previous snapshot.
func (p *Processor) Refresh(ctx context.Context, fetch Fetcher) (Result, error) {
	ch := p.group.DoChan("refresh", func() (any, error) {
		return p.refresh(fetch)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

// Close discards any in-flight refresh and rejects future ones.
func (p *Processor) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.stop()
}

// CheckReadiness returns nil once a refresh has installed a snapshot.
func (p *Processor) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no fire data loaded yet")
	}
	return nil
}

func (p *Processor) refresh(fetch Fetcher) (Result, error) {
	if p.life.Err() != nil {
		return Result{}, ErrClosed
	}
	start := time.Now()

	records, err := fetch(p.life)
	if err != nil {
		if p.life.Err() != nil {
			p.metrics.Refreshes.WithLabelValues("discarded").Inc()
			return Result{}, ErrClosed
		}
		p.metrics.Refreshes.WithLabelValues("source_error").Inc()
		p.logger.Error("fetch failed, keeping previous snapshot",
			"error", err,
			"generation", p.store.Snapshot().Generation,
		)
		return Result{}, fmt.Errorf("%w: %w", domain.ErrDataSource, err)
	}
	p.metrics.RecordsFetched.Add(float64(len(records)))

	detections, dropped, collapsed := p.mapRecords(records)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.metrics.Refreshes.WithLabelValues("discarded").Inc()
		p.logger.Info("refresh finished after close, discarding", "records", len(records))
		return Result{}, ErrClosed
	}
	p.generation++
	snap := domain.NewSnapshot(p.generation, detections, dropped)
	snap.Collapsed = collapsed
	p.store.Replace(snap)
	p.mu.Unlock()

	p.ready.Store(true)
	p.recordSuccess(snap, len(records), time.Since(start))
	p.publish(snap)

	return Result{
		Generation: snap.Generation,
		Detections: detections,
		Fetched:    len(records),
		Dropped:    dropped,
		Collapsed:  collapsed,
	}, nil
}

type decodedCell struct {
	geo domain.Geo
	err error
}

// mapRecords converts every record independently. Bad records are dropped and
// counted. Each distinct cell id is decoded once. Repeated cells keep the most
// recent observation (ties go to the higher power) and are counted as collapsed.
func (p *Processor) mapRecords(records []domain.RawFireRecord) ([]domain.FireDetection, int, int) {
	cells := make(map[string]decodedCell, len(records))
	position := make(map[string]int, len(records))
	out := make([]domain.FireDetection, 0, len(records))
	dropped, collapsed := 0, 0

	for _, rec := range records {
		cell, ok := cells[rec.CellID]
		if !ok {
			geo, err := p.decoder.Decode(rec.CellID)
			cell = decodedCell{geo: geo, err: err}
			cells[rec.CellID] = cell
		}
		if cell.err != nil {
			p.dropRecord(rec, "invalid_cell", cell.err)
			dropped++
			continue
		}

		det, err := domain.BuildDetection(rec, cell.geo)
		if err != nil {
			p.dropRecord(rec, "invalid_intensity", err)
			dropped++
			continue
		}

		if i, dup := position[det.CellID]; dup {
			if supersedes(det, out[i]) {
				out[i] = det
			}
			collapsed++
			continue
		}
		position[det.CellID] = len(out)
		out = append(out, det)
	}
	if collapsed > 0 {
		p.metrics.RecordsCollapsed.Add(float64(collapsed))
	}
	return out, dropped, collapsed
}

func supersedes(candidate, current domain.FireDetection) bool {
	if candidate.ObservedAt.Equal(current.ObservedAt) {
		return candidate.RadiativePower > current.RadiativePower
	}
	return candidate.ObservedAt.After(current.ObservedAt)
}

func (p *Processor) dropRecord(rec domain.RawFireRecord, reason string, err error) {
	p.logger.Warn("dropping hotspot record",
		"reason", reason,
		"error", err,
		"cell_id", rec.CellID,
		"frp", rec.RadiativePower,
	)
	p.metrics.RecordsDropped.WithLabelValues(reason).Inc()
}

func (p *Processor) recordSuccess(snap domain.Snapshot, fetched int, elapsed time.Duration) {
	outcome := "success"
	if snap.Dropped > 0 {
		outcome = "degraded"
	}
	p.metrics.Refreshes.WithLabelValues(outcome).Inc()
	p.metrics.RefreshDuration.Observe(elapsed.Seconds())

	counts := make(map[domain.SeverityTier]int)
	for i := range snap.Detections {
		counts[snap.Detections[i].Severity]++
	}
	for _, tier := range domain.SeverityTiers() {
		p.metrics.DetectionsCurrent.WithLabelValues(string(tier)).Set(float64(counts[tier]))
	}

	attrs := []any{
		"generation", snap.Generation,
		"fetched", fetched,
		"detections", len(snap.Detections),
		"dropped", snap.Dropped,
		"collapsed", snap.Collapsed,
		"duration", elapsed,
	}
	if snap.Dropped > 0 {
		p.logger.Warn("refresh completed with dropped records", attrs...)
		return
	}
	p.logger.Info("refresh complete", attrs...)
}

func (p *Processor) publish(snap domain.Snapshot) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(p.life, snap); err != nil {
		p.metrics.SnapshotPublishes.WithLabelValues("error").Inc()
		p.logger.Warn("snapshot publish failed", "error", err, "generation", snap.Generation)
		return
	}
	p.metrics.SnapshotPublishes.WithLabelValues("success").Inc()
}
