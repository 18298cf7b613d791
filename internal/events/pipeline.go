// Package events turns (name, payload) pairs into event records stamped with device identity and
// application metadata, and delivers them to an event sink that may be absent.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fleet-telemetry/agent/internal/events/domain"
	"fleet-telemetry/agent/internal/events/repository"
	"fleet-telemetry/agent/internal/identity"
	"fleet-telemetry/agent/internal/provider"
)

// Identity is the subset of the identity resolver used to stamp events.
type Identity interface {
	Serial(ctx context.Context) string
	MediaDeviceID(ctx context.Context, serial string) (int, error)
	RegisterNumber(ctx context.Context) string
	WorkstationName(ctx context.Context) string
}

// Pipeline emits events. Insert and InsertPayload wait for the write; InsertEvent and
// InsertEventPayload return immediately and are delivered by a single background worker in
// submission order. There is no ordering between the two groups.
type Pipeline struct {
	sink     repository.SinkProvider
	identity Identity
	appInfo  identity.AppInfoSource
	logger   zerolog.Logger
	metrics  *Metrics
	newID    func() string
	now      func() time.Time
	worker   *worker
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics sets the metrics the pipeline reports to.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides the generator used for unique ids and correlation ids.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// New returns a Pipeline delivering to sink and starts its background worker. Call Close to drain it.
func New(sink repository.SinkProvider, ident Identity, appInfo identity.AppInfoSource, logger zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		sink:     sink,
		identity: ident,
		appInfo:  appInfo,
		logger:   logger.With().Str("component", "events").Logger(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	if p.appInfo == nil {
		p.appInfo = identity.StaticAppInfo(identity.ApplicationInfo{})
	}
	p.worker = newWorker(func(n int) { p.metrics.queueDepth.Set(float64(n)) })
	return p
}

// Insert records one event with a pre-serialized payload and waits for the write.
// It returns nil without writing anything when the sink is absent. Identity errors
// (identity.UnresolvedIdentityError, identity.ErrInvalidInput) abort the emission and are returned.
func (p *Pipeline) Insert(ctx context.Context, name, data, correlationID string) error {
	_, err := p.insert(ctx, name, data, correlationID)
	return err
}

func (p *Pipeline) insert(ctx context.Context, name, data, correlationID string) (delivered bool, err error) {
	acquired, err := provider.Use(ctx, p.sink, func(h repository.SinkHandle) error {
		ev, err := p.stamp(ctx, name, data, correlationID)
		if err != nil {
			return err
		}
		return h.Insert(ctx, ev)
	})
	if !acquired {
		p.metrics.dropped.Inc()
		p.logger.Debug().Str("event", name).Msg("event sink not available, event dropped")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.metrics.inserted.Inc()
	return true, nil
}

// stamp builds the record. The serial is read once and reused.
func (p *Pipeline) stamp(ctx context.Context, name, data, correlationID string) (*domain.EventRecord, error) {
	serial := p.identity.Serial(ctx)

	var (
		mediaDeviceID  int
		registerNumber string
		workstation    string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := p.identity.MediaDeviceID(gctx, serial)
		mediaDeviceID = id
		return err
	})
	g.Go(func() error {
		registerNumber = p.identity.RegisterNumber(gctx)
		return nil
	})
	g.Go(func() error {
		workstation = p.identity.WorkstationName(gctx)
		return nil
	})
	app := p.appInfo()
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.EventRecord{
		UniqueID:           p.newID(),
		Name:               name,
		Timestamp:          p.now().UnixMilli(),
		Data:               data,
		User:               identity.FormatAsUserName(registerNumber, serial, mediaDeviceID),
		Workstation:        workstation,
		CorrelationID:      correlationID,
		ApplicationVersion: app.DisplayVersion(),
		ApplicationName:    app.Name,
	}, nil
}

// Marshal serializes a structured payload to its JSON string form.
func Marshal(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// InsertPayload serializes payload, generates a correlation id and inserts the event.
// It never fails: serialization and delivery errors are logged with their stage and dropped.
func (p *Pipeline) InsertPayload(ctx context.Context, name string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.failed.WithLabelValues(stagePanic).Inc()
			p.logger.Error().Str("event", name).Str("stage", stagePanic).
				Err(fmt.Errorf("%v", r)).Msg("error inserting event")
		}
	}()

	data, err := Marshal(payload)
	if err != nil {
		p.metrics.failed.WithLabelValues(stageSerialize).Inc()
		p.logger.Error().Err(err).Str("event", name).Str("stage", stageSerialize).Msg("error inserting event")
		return
	}
	delivered, err := p.insert(ctx, name, data, p.newID())
	if err != nil {
		p.metrics.failed.WithLabelValues(stageDeliver).Inc()
		p.logger.Error().Err(err).Str("event", name).Str("stage", stageDeliver).Msg("error inserting event")
		return
	}
	if delivered {
		p.logger.Info().Str("event", name).RawJSON("data", []byte(data)).Msg("event inserted")
	}
}

// InsertEvent queues Insert on the background worker and returns immediately. Errors are logged.
func (p *Pipeline) InsertEvent(name, data, correlationID string) {
	p.submit(name, func() {
		defer p.recoverJob(name)
		if err := p.Insert(context.Background(), name, data, correlationID); err != nil {
			p.metrics.failed.WithLabelValues(stageDeliver).Inc()
			p.logger.Error().Err(err).Str("event", name).Str("stage", stageDeliver).Msg("error inserting event")
		}
	})
}

// InsertEventPayload queues InsertPayload on the background worker and returns immediately.
func (p *Pipeline) InsertEventPayload(name string, payload any) {
	p.submit(name, func() {
		p.InsertPayload(context.Background(), name, payload)
	})
}

func (p *Pipeline) submit(name string, job func()) {
	if !p.worker.submit(job) {
		p.metrics.failed.WithLabelValues(stageClosed).Inc()
		p.logger.Warn().Str("event", name).Msg("pipeline closed, event dropped")
	}
}

func (p *Pipeline) recoverJob(name string) {
	if r := recover(); r != nil {
		p.metrics.failed.WithLabelValues(stagePanic).Inc()
		p.logger.Error().Str("event", name).Str("stage", stagePanic).
			Err(fmt.Errorf("%v", r)).Msg("error inserting event")
	}
}

// Pending returns the number of fire-and-forget submissions not yet picked up by the worker.
func (p *Pipeline) Pending() int {
	return p.worker.pending()
}

// Close stops accepting fire-and-forget submissions and waits for queued ones to be delivered,
// or for ctx to be done.
func (p *Pipeline) Close(ctx context.Context) error {
	return p.worker.close(ctx)
}
