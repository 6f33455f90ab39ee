// Package common defines shared constants and sentinel errors used across
// the shopkeeper client. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrStorage  = errors.New("storage failure")

	// Gateway-level errors.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	// Sync errors (bounded retry gave up on a queue item).
	ErrSyncItemExhausted = errors.New("sync item exhausted")

	// Interceptor errors (dev-context network failure, never cached).
	ErrDevBypass = errors.New("development bypass failed")
)
