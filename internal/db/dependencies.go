package db

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Client is the persistence surface the bot needs: a ban set with
// idempotent inserts and a small kv cache for resolved chat references.
type Client interface {
	Close() error

	// IsBlacklisted reports whether the user id is present in the ban set.
	IsBlacklisted(ctx context.Context, userID int64) (bool, error)
	// AddToBlacklist inserts the user id into the ban set. It reports false
	// when the id was already present.
	AddToBlacklist(ctx context.Context, userID int64) (bool, error)

	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}
