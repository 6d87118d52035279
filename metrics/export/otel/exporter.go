package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/zuzu-app/authcore"
	"github.com/zuzu-app/authcore/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is the read side of an engine. *authcore.Engine satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// collection is one callback's view of the engine. Cumulative histogram
// buckets are computed at most once per histogram.
type collection struct {
	snapshot   authcore.MetricsSnapshot
	dropped    uint64
	cumulative map[authcore.MetricID][8]uint64
}

func (c *collection) bucket(id authcore.MetricID, i int) (int64, bool) {
	buckets, ok := c.cumulative[id]
	if !ok {
		raw, found := c.snapshot.Histograms[id]
		if !found {
			return 0, false
		}
		buckets = internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		c.cumulative[id] = buckets
	}
	return int64(buckets[i]), true
}

// reading extracts one instrument's value; ok=false skips the observation.
type reading func(c *collection) (value int64, ok bool)

type instrument struct {
	observable metric.Int64Observable
	read       reading
}

// Exporter publishes engine snapshots through asynchronous OTel
// instruments: one counter per engine counter, one gauge per cumulative
// authenticate-latency bucket plus a sample count, and the audit drop
// counter.
type Exporter struct {
	source       Source
	instruments  []instrument
	registration metric.Registration
}

// New creates every instrument on meter and registers a single callback
// that reads source on each collection.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}

	for _, def := range internaldefs.CounterDefs {
		id := def.ID
		ins, err := meter.Int64ObservableCounter(def.Name,
			metric.WithDescription(def.Help),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.add(ins, func(c *collection) (int64, bool) {
			return int64(c.snapshot.Counters[id]), true
		})
	}

	for _, def := range internaldefs.HistogramDefs {
		id := def.ID
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			i := i
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name,
				metric.WithDescription(fmt.Sprintf("%s Samples at or below %s seconds.", def.Help, internaldefs.HistogramBounds[i])),
				metric.WithUnit("{sample}"),
			)
			if err != nil {
				return nil, fmt.Errorf("bucket gauge %s: %w", name, err)
			}
			e.add(ins, func(c *collection) (int64, bool) { return c.bucket(id, i) })
		}

		last := len(internaldefs.HistogramBoundSuffix) - 1
		ins, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."),
			metric.WithUnit("{sample}"),
		)
		if err != nil {
			return nil, fmt.Errorf("count gauge %s: %w", def.Name, err)
		}
		e.add(ins, func(c *collection) (int64, bool) { return c.bucket(id, last) })
	}

	dropped, err := meter.Int64ObservableCounter("authcore_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("audit dropped counter: %w", err)
	}
	e.add(dropped, func(c *collection) (int64, bool) { return int64(c.dropped), true })

	observables := make([]metric.Observable, len(e.instruments))
	for i, ins := range e.instruments {
		observables[i] = ins.observable
	}
	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) add(observable metric.Int64Observable, read reading) {
	e.instruments = append(e.instruments, instrument{observable: observable, read: read})
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	c := &collection{
		snapshot:   e.source.MetricsSnapshot(),
		dropped:    e.source.AuditDropped(),
		cumulative: make(map[authcore.MetricID][8]uint64, len(internaldefs.HistogramDefs)),
	}
	for _, ins := range e.instruments {
		if v, ok := ins.read(c); ok {
			observer.ObserveInt64(ins.observable, v)
		}
	}
	return nil
}

// Close unregisters the callback. The instruments stay on the meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
