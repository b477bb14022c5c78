package notify

import (
	"context"
	"errors"
	"log"
	"sync"

	alarmapp "groundstation-safety/internal/alarms/application"
	alarms "groundstation-safety/internal/alarms/domain"
)

// AsyncNotifier moves slow deliveries, such as webhooks, off the signal
// update path. Notifications are dropped when the queue is full.
type AsyncNotifier struct {
	next   alarmapp.Notifier
	logger *log.Logger
	queue  chan alarms.Notification
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsyncNotifier starts a worker forwarding to next.
func NewAsyncNotifier(next alarmapp.Notifier, buffer int, logger *log.Logger) (*AsyncNotifier, error) {
	if next == nil {
		return nil, errors.New("async notifier: nil notifier")
	}
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &AsyncNotifier{next: next, logger: logger, queue: make(chan alarms.Notification, buffer)}
	a.wg.Add(1)
	go a.run()
	return a, nil
}

// Notify enqueues n.
func (a *AsyncNotifier) Notify(_ context.Context, n alarms.Notification) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- n:
	default:
		a.logger.Printf("notify: queue full, dropping %s notification %s", n.Condition, n.ID)
	}
}

// Close drains the queue and stops the worker.
func (a *AsyncNotifier) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *AsyncNotifier) run() {
	defer a.wg.Done()
	for n := range a.queue {
		a.next.Notify(context.Background(), n)
	}
}
