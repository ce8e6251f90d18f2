// internal/app/system/mailer/dispatch.go
package mailer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/metrics"
	"go.uber.org/zap"
)

// Mail kinds, used as the metrics label and in logs.
const (
	KindConfirmation = "confirmation"
	KindAgentAlert   = "agent_alert"
	KindOpened       = "opened"
	KindDecision     = "decision"
)

// ErrClosed reports a message dispatched after Close.
var ErrClosed = errors.New("mailer: dispatcher closed")

// Dispatcher sends e-mails in the background so a slow or failing SMTP
// server never holds up the request that triggered the message.
type Dispatcher struct {
	sender  Sender
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool
}

func NewDispatcher(sender Sender, log *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &Dispatcher{sender: sender, log: log, metrics: m, timeout: timeout}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Dispatch queues e for delivery and returns immediately. Messages without
// a recipient, or dispatched after Close, are dropped with a warning. A nil
// Dispatcher is a no-op.
func (d *Dispatcher) Dispatch(kind string, e Email) {
	if d == nil {
		return
	}
	if e.To == "" {
		d.log.Warn("mail skipped: no recipient", zap.String("kind", kind))
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("mail dropped: dispatcher closed", zap.String("kind", kind))
		d.metrics.ObserveMail(kind, ErrClosed)
		return
	}
	d.pending++
	d.mu.Unlock()

	go func() {
		defer d.done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.sender.Send(ctx, e)
		d.metrics.ObserveMail(kind, err)
		if err != nil {
			d.log.Error("mail delivery failed",
				zap.String("kind", kind),
				zap.Error(err))
			return
		}
		d.log.Info("mail sent", zap.String("kind", kind))
	}()
}

func (d *Dispatcher) done() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending--
	if d.pending == 0 {
		d.idle.Broadcast()
	}
}

// Wait blocks until every message dispatched so far has been handled. It
// may run alongside Dispatch.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending > 0 {
		d.idle.Wait()
	}
}

// Close stops accepting messages and waits for the queued ones.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Wait()
}
