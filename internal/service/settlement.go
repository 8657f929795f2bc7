package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SettlementWatcher waits for the outcome of one push request. Running out
// of patience yields SettlementSilent with a nil error; only a cancelled
// context is an error.
type SettlementWatcher interface {
	Await(ctx context.Context, gatewayRef string) (Settlement, error)
}

// PollingWatcher asks the gateway a fixed number of times with a fixed pause.
type PollingWatcher struct {
	gateway  PaymentGateway
	attempts int
	interval time.Duration
}

func NewPollingWatcher(gateway PaymentGateway, attempts int, interval time.Duration) *PollingWatcher {
	if attempts < 1 {
		attempts = 1
	}
	return &PollingWatcher{gateway: gateway, attempts: attempts, interval: interval}
}

func (w *PollingWatcher) Await(ctx context.Context, gatewayRef string) (Settlement, error) {
	for n := 1; n <= w.attempts; n++ {
		state, err := w.gateway.CheckStatus(ctx, gatewayRef)
		if err != nil {
			zap.L().Debug("status poll failed",
				zap.String("reference", gatewayRef),
				zap.Int("attempt", n),
				zap.Error(err),
			)
		} else if s := SettlementFor(state); s.Outcome != SettlementSilent {
			return s, nil
		}

		if n == w.attempts {
			break
		}
		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Settlement{Outcome: SettlementSilent}, ctx.Err()
		case <-timer.C:
		}
	}
	return Settlement{Outcome: SettlementSilent}, nil
}

// CallbackWatcher waits for settlements pushed in through Notify, e.g. by
// the gateway's callback relay. A notification that arrives before anyone
// waits is kept for one timeout period.
type CallbackWatcher struct {
	mu      sync.Mutex
	timeout time.Duration
	waiters map[string][]chan Settlement
	early   map[string]earlyNotice
}

type earlyNotice struct {
	settlement Settlement
	at         time.Time
}

func NewCallbackWatcher(timeout time.Duration) *CallbackWatcher {
	return &CallbackWatcher{
		timeout: timeout,
		waiters: make(map[string][]chan Settlement),
		early:   make(map[string]earlyNotice),
	}
}

func (w *CallbackWatcher) Await(ctx context.Context, gatewayRef string) (Settlement, error) {
	w.mu.Lock()
	if n, ok := w.early[gatewayRef]; ok {
		delete(w.early, gatewayRef)
		w.mu.Unlock()
		return n.settlement, nil
	}
	ch := make(chan Settlement, 1)
	w.waiters[gatewayRef] = append(w.waiters[gatewayRef], ch)
	w.mu.Unlock()
	defer w.drop(gatewayRef, ch)

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	select {
	case s := <-ch:
		return s, nil
	case <-timer.C:
		return Settlement{Outcome: SettlementSilent}, nil
	case <-ctx.Done():
		return Settlement{Outcome: SettlementSilent}, ctx.Err()
	}
}

// Notify delivers a settlement, message included. Silent settlements are
// ignored. It reports whether a waiter was woken.
func (w *CallbackWatcher) Notify(gatewayRef string, s Settlement) bool {
	if s.Outcome == SettlementSilent {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	waiters := w.waiters[gatewayRef]
	delete(w.waiters, gatewayRef)
	for _, ch := range waiters {
		ch <- s
	}
	if len(waiters) > 0 {
		return true
	}

	now := time.Now()
	for ref, n := range w.early {
		if now.Sub(n.at) > w.timeout {
			delete(w.early, ref)
		}
	}
	w.early[gatewayRef] = earlyNotice{settlement: s, at: now}
	return false
}

func (w *CallbackWatcher) drop(gatewayRef string, ch chan Settlement) {
	w.mu.Lock()
	defer w.mu.Unlock()
	waiters := w.waiters[gatewayRef]
	for i, c := range waiters {
		if c == ch {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(w.waiters, gatewayRef)
	} else {
		w.waiters[gatewayRef] = waiters
	}
}
