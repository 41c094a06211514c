package session

import (
	"go.uber.org/zap"
)

// NoticeLevel grades user-visible notices
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notifier surfaces user-visible notices (the toast surface of the client).
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(level NoticeLevel, message string)
}

// NopNotifier discards notices
type NopNotifier struct{}

func (NopNotifier) Notify(NoticeLevel, string) {}

// LogNotifier writes notices to the service log
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Notify(level NoticeLevel, message string) {
	switch level {
	case NoticeWarning:
		n.Log.Warn(message)
	case NoticeError:
		n.Log.Error(message)
	default:
		n.Log.Info(message)
	}
}
