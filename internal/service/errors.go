package service

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"linknote-server/internal/domain"
)

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrInvalidRecord     = errors.New("invalid record")
)

// RateLimitedError is a throttling signal, not a failure of the request.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %d seconds", e.RetryAfterSeconds())
}

func (e *RateLimitedError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "invalid record: " + strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRecord }

// BulkRejectedError means nothing was persisted.
type BulkRejectedError struct {
	Result *domain.BulkResult
}

func (e *BulkRejectedError) Error() string {
	return fmt.Sprintf("bulk save rejected: %d parse errors, %d validation errors",
		len(e.Result.ParseErrors), len(e.Result.ValidationErrors))
}
