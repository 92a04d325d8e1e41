package telegram

import (
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Error classes. Transient errors are retried with backoff; the other two
// cannot heal on their own and degrade the connection immediately.
const (
	// ClassTransient covers network failures, timeouts and server errors.
	ClassTransient = "transient"
	// ClassConflict means another consumer holds the update stream, either
	// a second poller or a configured webhook.
	ClassConflict = "conflict"
	// ClassCredential means the token was rejected.
	ClassCredential = "credential"
)

// Classify maps a transport error to its retry class.
func Classify(err error) string {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return ClassTransient
	}
	switch apiErr.Code {
	case 401:
		return ClassCredential
	case 409:
		return ClassConflict
	default:
		return ClassTransient
	}
}

// IsFatal reports whether the error should skip retrying entirely.
func IsFatal(err error) bool {
	return Classify(err) != ClassTransient
}
