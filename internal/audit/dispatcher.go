package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit events to a sink. A nil
// *Dispatcher is valid and drops everything.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Event
	done      chan struct{}
	drained   chan struct{}
	dropped   atomic.Uint64
	emitted   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		ch:      make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}

	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer close(d.drained)

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	d.sink.Emit(context.Background(), event)
	d.emitted.Add(1)
}

// Emit queues event. With DropIfFull a full buffer drops the event and counts
// it; otherwise Emit blocks until there is room, ctx ends, or the dispatcher
// closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops accepting events and waits until the buffer is drained.
func (d *Dispatcher) Close() {
	_ = d.Shutdown(context.Background())
}

// Shutdown stops accepting events and waits for the buffer to drain or ctx
// to end, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
	})
	select {
	case <-d.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns the number of events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.emitted.Load()
}
