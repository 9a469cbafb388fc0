package membership

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/temanrandom/menfesbot/internal/db"
	"github.com/temanrandom/menfesbot/internal/telegram"
)

const (
	kvKeyChannelID = "channel_numeric_id"
	kvKeyGroupID   = "group_numeric_id"
)

type chatIDResolver interface {
	ResolveChatID(ctx context.Context, username string) (int64, error)
}

type kvStore interface {
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}

// Resolver turns the configured channel/group usernames into stable numeric
// chat ids once at startup and caches them in the kv store across restarts.
// Until (or unless) a username resolves, the gate falls back to
// username-qualified references.
type Resolver struct {
	ops   chatIDResolver
	store kvStore

	channelUsername string
	groupUsername   string

	channelID atomic.Int64
	groupID   atomic.Int64

	mu      sync.Mutex
	started bool
}

func NewResolver(ops chatIDResolver, store kvStore, channelUsername, groupUsername string) *Resolver {
	return &Resolver{
		ops:             ops,
		store:           store,
		channelUsername: channelUsername,
		groupUsername:   groupUsername,
	}
}

// Start runs the resolution pass. The runtime starts it before the update
// loop begins consuming, so handlers always observe the final refs.
func (r *Resolver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	r.resolve(ctx, kvKeyChannelID, r.channelUsername, &r.channelID)
	r.resolve(ctx, kvKeyGroupID, r.groupUsername, &r.groupID)

	r.started = true
	return nil
}

func (r *Resolver) Stop(ctx context.Context) error {
	return nil
}

// ChannelRef returns the best known reference to the broadcast channel.
func (r *Resolver) ChannelRef() telegram.ChatRef {
	return telegram.ChatRef{ID: r.channelID.Load(), Username: r.channelUsername}
}

// GroupRef returns the best known reference to the discussion group.
func (r *Resolver) GroupRef() telegram.ChatRef {
	return telegram.ChatRef{ID: r.groupID.Load(), Username: r.groupUsername}
}

func (r *Resolver) resolve(ctx context.Context, kvKey, username string, target *atomic.Int64) {
	entry := log.WithFields(log.Fields{"object": "Resolver", "chat": username})

	if cached, err := r.store.GetKV(ctx, kvKey); err == nil {
		if id, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil && id != 0 {
			target.Store(id)
			entry.Debugf("chat id loaded from cache: %d", id)
			return
		}
	} else if !errors.Is(err, db.ErrNotFound) {
		entry.WithField("error", err.Error()).Warn("cant read cached chat id")
	}

	id, err := r.ops.ResolveChatID(ctx, username)
	if err != nil {
		entry.WithField("error", err.Error()).Error("cant resolve chat id, will use username reference")
		return
	}
	target.Store(id)
	entry.Infof("chat id resolved: @%s -> %d", username, id)

	if err := r.store.SetKV(ctx, kvKey, strconv.FormatInt(id, 10)); err != nil {
		entry.WithField("error", err.Error()).Warn("cant cache resolved chat id")
	}
}
