package errors

import (
	"errors"
	"fmt"
)

var (
	ErrMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConfiguration   = errors.New("invalid configuration")
	ErrIO              = errors.New("storage i/o failed")
	ErrChannelNotFound = fmt.Errorf("channel %w", ErrNotFound)
)

// Validation marks err as a malformed record or payload.
func Validation(err error) error {
	return mark(ErrValidation, err)
}

// NotFound marks err as a missing entity.
func NotFound(err error) error {
	return mark(ErrNotFound, err)
}

// IO marks err as a storage failure.
func IO(err error) error {
	return mark(ErrIO, err)
}

// Configuration marks err as a startup configuration error.
func Configuration(err error) error {
	return mark(ErrConfiguration, err)
}

func mark(kind, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
