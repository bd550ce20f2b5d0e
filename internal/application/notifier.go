package application

import "context"

// Alert is one push message.
type Alert struct {
	Title    string
	Message  string
	Priority int
}

// Notifier delivers alerts to the household.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NoopNotifier drops every alert.
type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ Alert) error {
	return nil
}
