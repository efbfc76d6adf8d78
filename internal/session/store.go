// Package session persists conversation history keyed by session id.
//
// The store owns the durable copy: a conversation held by a request is a
// working copy loaded at request start, and concurrent requests for the
// same session must each load and save through the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/memory"
)

// ErrUnavailable is wrapped into the ConnectivityError returned when the
// backing service cannot be reached. Load and Save never silently succeed
// on a connection failure: that would be undetected memory loss.
var ErrUnavailable = errors.New("session store unavailable")

// unavailable tags a backend failure with ErrUnavailable so callers can
// match the sentinel with errors.Is while the cause stays in the chain.
func unavailable(err error) *domain.ConnectivityError {
	return &domain.ConnectivityError{
		Service: "session store",
		Err:     fmt.Errorf("%w: %w", ErrUnavailable, err),
	}
}

// DefaultPrefix namespaces all session keys.
const DefaultPrefix = "parley:session"

// MaxSessionIDLength bounds caller-supplied session ids.
const MaxSessionIDLength = 128

// Store loads and saves conversations with a sliding TTL.
type Store interface {
	// Load returns the conversation for the session, or a fresh empty one
	// on a miss. Limits come from current configuration, not from the
	// stored record.
	Load(ctx context.Context, sessionID string) (*memory.Conversation, error)

	// Save serializes the conversation and refreshes its TTL. Idempotent.
	Save(ctx context.Context, conv *memory.Conversation) error

	// Delete removes the record, reporting whether one existed.
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// sessionIDPattern accepts the characters safe to embed in a storage key.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateSessionID rejects ids that are empty, too long, or contain
// characters unsafe for use in a storage key. Session ids are caller
// supplied and always treated as untrusted.
func ValidateSessionID(id string) error {
	if id == "" {
		return &domain.ValidationError{Field: "sessionId", Message: "must not be empty"}
	}
	if len(id) > MaxSessionIDLength {
		return &domain.ValidationError{Field: "sessionId", Message: "too long"}
	}
	if !sessionIDPattern.MatchString(id) {
		return &domain.ValidationError{Field: "sessionId", Message: "contains invalid characters"}
	}
	return nil
}
