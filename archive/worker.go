package archive

import (
	"context"
	"time"

	"github.com/bosley/parley/conversation"
)

const writeTimeout = 5 * time.Second

type exchangeJob struct {
	sessionID string
	exchange  conversation.Exchange
}

// Attach subscribes to log and archives each new exchange under sessionID.
// The returned func detaches.
func (a *Archive) Attach(sessionID string, log *conversation.Log) func() {
	id := log.Subscribe(func(ex conversation.Exchange) {
		if err := a.enqueue(exchangeJob{sessionID: sessionID, exchange: ex}); err != nil {
			a.log.Error("Failed to queue exchange for archive",
				"error", err,
				"session", sessionID,
				"seq", ex.Seq)
		}
	})
	return func() { log.Unsubscribe(id) }
}

func (a *Archive) enqueue(job exchangeJob) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.queue <- job:
		return nil
	default:
		// Queue full; write inline rather than drop the exchange.
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return a.AppendExchange(ctx, job.sessionID, job.exchange)
	}
}

func (a *Archive) worker() {
	a.log.Debug("Archive worker starting")
	defer func() {
		a.log.Debug("Archive worker shutting down")
		a.workers.Done()
	}()

	for job := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := a.AppendExchange(ctx, job.sessionID, job.exchange)
		cancel()
		if err != nil {
			a.log.Error("Failed to archive exchange",
				"error", err,
				"session", job.sessionID,
				"seq", job.exchange.Seq)
			continue
		}
		a.log.Debug("Archived exchange", "session", job.sessionID, "seq", job.exchange.Seq)
	}
}
