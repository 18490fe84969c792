// Package recorder persists the uplink's ledger closes and health samples.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"xrpl-uplink/internal/domain"
	"xrpl-uplink/internal/observability"
	"xrpl-uplink/internal/storage"
	"xrpl-uplink/internal/xrpl"
)

// Options contains configuration for creating a Recorder.
type Options struct {
	LedgerStore storage.LedgerCloseStore
	HealthStore storage.HealthSampleStore

	// HealthSampleRate caps health-sample persistence. State events can
	// arrive in bursts around reconnects; excess samples are dropped.
	// Zero means one sample per second.
	HealthSampleRate rate.Limit

	// QueueSize bounds the internal event queue. Zero means 256.
	QueueSize int

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Recorder consumes the client's event surface and writes ledger closes
// and health samples to storage. Events are queued and handled on the
// recorder's own goroutine so storage latency never blocks the uplink.
type Recorder struct {
	ledgerStore storage.LedgerCloseStore
	healthStore storage.HealthSampleStore
	limiter     *rate.Limiter
	log         zerolog.Logger
	metrics     *observability.Metrics

	queue chan xrpl.Event
}

// New creates a recorder with the provided stores.
func New(opts Options) *Recorder {
	sampleRate := opts.HealthSampleRate
	if sampleRate == 0 {
		sampleRate = rate.Limit(1)
	}
	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = 256
	}
	return &Recorder{
		ledgerStore: opts.LedgerStore,
		healthStore: opts.HealthStore,
		limiter:     rate.NewLimiter(sampleRate, 1),
		log:         opts.Logger,
		metrics:     opts.Metrics,
		queue:       make(chan xrpl.Event, queueSize),
	}
}

// Attach registers the recorder on the client's event surface. The
// handler only enqueues; a full queue drops the event with a log line.
func (r *Recorder) Attach(client *xrpl.Client) {
	client.OnEvent(func(ev xrpl.Event) {
		switch ev.Type {
		case xrpl.EventLedger, xrpl.EventState:
		default:
			return
		}
		select {
		case r.queue <- ev:
		default:
			r.log.Warn().Str("event", string(ev.Type)).Msg("recorder queue full, dropping event")
		}
	})
}

// Run drains the queue until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.queue:
			r.handle(ctx, ev)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev xrpl.Event) {
	switch ev.Type {
	case xrpl.EventLedger:
		r.recordLedger(ctx, ev)
	case xrpl.EventState:
		r.recordHealth(ctx, ev)
	}
}

func (r *Recorder) recordLedger(ctx context.Context, ev xrpl.Event) {
	if r.ledgerStore == nil || ev.Ledger == nil || ev.Ledger.LedgerIndex == 0 {
		return
	}

	lc := &domain.LedgerClose{
		Endpoint:         ev.Endpoint,
		LedgerIndex:      ev.Ledger.LedgerIndex,
		ValidatedLedgers: ev.Ledger.ValidatedLedgers,
		ReserveBase:      ev.Ledger.ReserveBase,
		ReserveInc:       ev.Ledger.ReserveInc,
		TxnCount:         ev.Ledger.TxnCount,
		ObservedAt:       time.Now().UnixMilli(),
	}

	err := r.ledgerStore.Insert(ctx, lc)
	switch {
	case err == nil:
		if r.metrics != nil {
			r.metrics.LedgerClosesStored.Inc()
		}
	case errors.Is(err, storage.ErrDuplicateKey):
		// Replays after a reconnect re-announce ledgers already seen.
	default:
		if r.metrics != nil {
			r.metrics.StoreErrors.WithLabelValues("ledger_closes").Inc()
		}
		r.log.Error().Err(err).Uint64("ledger", lc.LedgerIndex).Msg("store ledger close")
	}
}

func (r *Recorder) recordHealth(ctx context.Context, ev xrpl.Event) {
	if r.healthStore == nil || ev.State == nil {
		return
	}
	if !r.limiter.Allow() {
		return
	}

	st := ev.State
	sample := &domain.HealthSample{
		Endpoint:     st.Server.URI,
		Online:       st.Online,
		LatencyMs:    st.Latency.LastMs,
		LatencyAvgMs: st.Latency.AvgMs,
		FeeDrops:     st.Fee.LastDrops,
		LedgerLast:   st.Ledger.Last,
		ObservedAt:   time.Now().UnixMilli(),
	}
	if st.Reserve.Base != nil {
		sample.ReserveBaseXRP = *st.Reserve.Base
	}

	if err := r.healthStore.InsertBulk(ctx, []*domain.HealthSample{sample}); err != nil {
		if r.metrics != nil {
			r.metrics.StoreErrors.WithLabelValues("health_samples").Inc()
		}
		r.log.Error().Err(err).Msg("store health sample")
		return
	}
	if r.metrics != nil {
		r.metrics.HealthSamplesStored.Inc()
	}
}
