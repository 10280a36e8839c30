package mail

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSendTimeout = 30 * time.Second

// Dispatcher sends messages in the background. A failed send is logged and
// dropped; callers never see it.
type Dispatcher struct {
	sender  Sender
	logger  *zap.SugaredLogger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sender Sender, logger *zap.SugaredLogger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{sender: sender, logger: logger, timeout: timeout}
}

// Dispatch queues msg and returns immediately. The send runs with its own
// timeout, detached from any request context.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warnw("mail dropped, dispatcher closed", "to", msg.To, "template", msg.Template)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		start := time.Now()
		if err := d.sender.Send(ctx, msg); err != nil {
			d.logger.Errorw("mail send failed", "to", msg.To, "template", msg.Template, "err", err)
			return
		}
		d.logger.Debugw("mail sent", "to", msg.To, "template", msg.Template, "duration_ms", time.Since(start).Milliseconds())
	}()
}

// Close stops accepting messages and waits for in-flight sends or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
