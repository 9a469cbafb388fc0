package membership

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/temanrandom/menfesbot/internal/observability"
	"github.com/temanrandom/menfesbot/internal/telegram"
)

type memberLookup interface {
	GetChatMember(ctx context.Context, chat telegram.ChatRef, userID int64) (api.ChatMember, error)
}

// lookupResult is telemetry only, the external contract stays boolean.
type lookupResult string

const (
	resultMember        lookupResult = "member"
	resultNotMember     lookupResult = "not_member"
	resultLookupFailed  lookupResult = "lookup_failed"
	resultFallbackUsed  lookupResult = "fallback_member"
	resultFallbackIsNot lookupResult = "fallback_not_member"
)

// Gate answers whether a user currently belongs to a chat. Lookup faults
// collapse to "not a member": a false rejection beats an unbounded retry.
type Gate struct {
	lookup memberLookup
}

func NewGate(lookup memberLookup) *Gate {
	return &Gate{lookup: lookup}
}

// IsMember checks membership against the numeric chat reference first and,
// if that lookup fails and a fallback username is known, retries once
// against the username-qualified reference.
func (g *Gate) IsMember(ctx context.Context, userID int64, ref telegram.ChatRef) bool {
	entry := log.WithFields(log.Fields{
		"object":  "Gate",
		"user_id": userID,
		"chat_id": ref.ID,
	})

	primary := ref
	if ref.ID != 0 {
		primary = telegram.ChatRef{ID: ref.ID}
	}

	member, err := g.lookup.GetChatMember(ctx, primary, userID)
	if err == nil {
		return g.conclude(entry, member)
	}

	if ref.ID == 0 || ref.Username == "" {
		entry.WithField("error", err.Error()).Error("membership lookup failed, no fallback available")
		observability.RecordMembershipCheck(string(resultLookupFailed))
		return false
	}

	entry.WithField("error", err.Error()).Infof("retrying membership check with username @%s", ref.Username)
	member, err = g.lookup.GetChatMember(ctx, telegram.ChatRef{Username: ref.Username}, userID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("both numeric and username membership checks failed")
		observability.RecordMembershipCheck(string(resultLookupFailed))
		return false
	}

	if statusIsMember(member.Status) {
		observability.RecordMembershipCheck(string(resultFallbackUsed))
		return true
	}
	observability.RecordMembershipCheck(string(resultFallbackIsNot))
	return false
}

func (g *Gate) conclude(entry *log.Entry, member api.ChatMember) bool {
	isMember := statusIsMember(member.Status)
	entry.Debugf("membership check: %v (status: %s)", isMember, member.Status)
	if isMember {
		observability.RecordMembershipCheck(string(resultMember))
	} else {
		observability.RecordMembershipCheck(string(resultNotMember))
	}
	return isMember
}

func statusIsMember(status string) bool {
	switch status {
	case "creator", "administrator", "member":
		return true
	default:
		return false
	}
}
