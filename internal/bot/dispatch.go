package bot

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher serializes work per user: one goroutine and one channel per
// telegram identity, so a second message from the same user queues behind
// the first while different users proceed in parallel. No ordering is
// guaranteed across users.
type Dispatcher struct {
	handler *Handler
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[int64]chan task
	closed bool
	wg     sync.WaitGroup
}

type task struct {
	ev      Event
	deliver func([]Reply)
}

const queueDepth = 16

func NewDispatcher(handler *Handler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handler: handler,
		logger:  logger,
		queues:  make(map[int64]chan task),
	}
}

// Submit enqueues one event behind the user's in-flight work. deliver is
// called from the user's worker goroutine once handling finishes. A full
// queue drops the event rather than blocking the transport. The enqueue
// stays under the lock so Shutdown can never close a channel with a send
// in flight.
func (d *Dispatcher) Submit(ev Event, deliver func([]Reply)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event", "user_id", ev.UserID)
		return
	}
	q, ok := d.queues[ev.UserID]
	if !ok {
		q = make(chan task, queueDepth)
		d.queues[ev.UserID] = q
		d.wg.Add(1)
		go d.run(ev.UserID, q)
	}

	select {
	case q <- task{ev: ev, deliver: deliver}:
	default:
		d.logger.Warn("user queue full, dropping event", "user_id", ev.UserID)
	}
}

func (d *Dispatcher) run(userID int64, q chan task) {
	defer d.wg.Done()
	ctx := context.Background()
	for t := range q {
		var replies []Reply
		if t.ev.File != nil {
			replies = d.handler.HandleFile(ctx, t.ev)
		} else {
			replies = d.handler.HandleText(ctx, t.ev)
		}
		if t.deliver != nil {
			t.deliver(replies)
		}
	}
	d.logger.Debug("user queue drained", "user_id", userID)
}

// Shutdown stops accepting events and waits for every queue to drain.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
