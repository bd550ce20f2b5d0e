package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"solarcore/internal/domain"
	"solarcore/internal/events"
)

const (
	PriorityNormal = 0
	PriorityHigh   = 1
)

// Alerts turns security events into push notifications. Events are queued so
// a slow push provider never blocks the publisher; when the queue is full the
// alert is dropped and logged.
type Alerts struct {
	notifier Notifier
	logger   *slog.Logger
	workers  int
	jobs     chan Alert
	wg       sync.WaitGroup
}

// NewAlerts sizes the worker pool and queue. Call Start before Watch.
func NewAlerts(notifier Notifier, workers, queueSize int, logger *slog.Logger) *Alerts {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	return &Alerts{
		notifier: notifier,
		logger:   logger,
		workers:  workers,
		jobs:     make(chan Alert, queueSize),
	}
}

// Start launches the workers. They exit when ctx is done.
func (a *Alerts) Start(ctx context.Context) {
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (a *Alerts) Wait() {
	a.wg.Wait()
}

func (a *Alerts) worker(ctx context.Context, id int) {
	defer a.wg.Done()
	for {
		select {
		case alert := <-a.jobs:
			if err := a.notifier.Notify(ctx, alert); err != nil {
				a.logger.Error("sending alert", "worker", id, "title", alert.Title, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Enqueue hands an alert to the workers without blocking.
func (a *Alerts) Enqueue(alert Alert) bool {
	select {
	case a.jobs <- alert:
		return true
	default:
		a.logger.Warn("alert queue full, dropping", "title", alert.Title)
		return false
	}
}

// Watch forwards security events to the queue until the returned function is
// called.
func (a *Alerts) Watch(bus *events.Bus) (unsubscribe func()) {
	unsubs := []func(){
		events.Subscribe(bus, events.TopicDoorLocked, func(e events.SecurityChanged) {
			a.Enqueue(Alert{Title: "Door locked", Message: describe(e.State), Priority: PriorityNormal})
		}),
		events.Subscribe(bus, events.TopicDoorUnlocked, func(e events.SecurityChanged) {
			a.Enqueue(Alert{Title: "Door unlocked", Message: describe(e.State), Priority: PriorityHigh})
		}),
		events.Subscribe(bus, events.TopicSecurityModeChanged, func(e events.SecurityChanged) {
			a.Enqueue(Alert{Title: "Security mode changed", Message: describe(e.State), Priority: PriorityNormal})
		}),
		events.Subscribe(bus, events.TopicAutoShutdown, func(e events.AutoShutdown) {
			msg := "Appliances were switched off while you are away."
			if len(e.Except) > 0 {
				msg = fmt.Sprintf("%s Kept on: %v.", msg, e.Except)
			}
			a.Enqueue(Alert{Title: "Auto-shutdown", Message: msg, Priority: PriorityHigh})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func describe(s domain.SecurityState) string {
	switch s.Phase() {
	case domain.PhaseAwayLocked:
		return "Door locked, away mode on."
	case domain.PhaseHomeLocked:
		return "Door locked, home mode."
	default:
		return "Door unlocked."
	}
}
