package authkit

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands events to the sink from a single background
// goroutine so a slow or failing sink never sits on the request path.
type auditDispatcher struct {
	sink         AuditSink
	events       chan AuditEvent
	dropWhenFull bool
	dropped      atomic.Uint64
	flushed      chan struct{}

	// mu lets close wait out in-flight emits before closing the channel.
	mu     sync.RWMutex
	closed bool
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoopSink{}
	}

	d := &auditDispatcher{
		sink:         sink,
		events:       make(chan AuditEvent, size),
		dropWhenFull: cfg.DropIfFull,
		flushed:      make(chan struct{}),
	}
	go func() {
		defer close(d.flushed)
		for event := range d.events {
			d.sink.Log(context.Background(), event)
		}
	}()
	return d
}

// emit queues an event. In drop mode a full buffer increments the drop
// counter instead of blocking; otherwise the caller waits for room or
// for its context to expire.
func (d *auditDispatcher) emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	if d.dropWhenFull {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.events <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// close stops intake and returns once every buffered event has reached
// the sink. Safe to call more than once.
func (d *auditDispatcher) close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	<-d.flushed
}

func (d *auditDispatcher) droppedCount() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
