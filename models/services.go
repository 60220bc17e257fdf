package models

import (
	"context"
)

type KeyValueRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type MirrorReader interface {
	FetchMessages(ctx context.Context, topicId, since string) ([]*RawMessage, error)
}

// EventSink accepts canonical events and reports whether the event was new.
type EventSink interface {
	Add(event *SignalEvent) bool
}

type QueuePublisher interface {
	GetUrl() string
	SendMessage(ctx context.Context, event any) (string, error)
}

type Notifier interface {
	SendAlert(title, desc string) error
	SendWarning(title, desc string) error
}

type MetricService interface {
	Count(ctx context.Context, name MetricName, val int) error
	Gauge(ctx context.Context, name MetricName, monitor ResourceMonitor) error
	Distribution(ctx context.Context, name MetricName, val int) error
	Shutdown(ctx context.Context)
}

type ResourceMonitor interface {
	GetValue(ctx context.Context) (int, error)
}

type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Infoln(args ...interface{})
	Warnf(template string, args ...interface{})
	Sync() error
}
