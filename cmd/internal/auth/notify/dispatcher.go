package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher delivers notifications asynchronously.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher wraps n. A nil n behaves like Noop.
func NewDispatcher(n Notifier, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if n == nil {
		n = Noop{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{notifier: n, timeout: timeout, logger: logger}
}

// NewAccount schedules a notification and returns immediately.
// The delivery context is detached from ctx so request cancellation does not abort it.
func (d *Dispatcher) NewAccount(ctx context.Context, n NewAccount) {
	if d == nil {
		return
	}
	base := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		err := d.deliver(base, n)
		if err != nil {
			d.logger.Warn("notify.new_account.fail", "account_id", n.AccountID, "err", err)
		}
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, n NewAccount) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return d.notifier.NotifyNewAccount(ctx, n)
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
