// Package conversation aggregates the flat message stream into durable
// conversation threads. Aggregation is a pure function: groups are rebuilt
// on every pass, never persisted, and the output is deterministic for a
// given input list.
package conversation

import (
	"sort"
	"time"

	"github.com/nextlevelbuilder/opsdesk/internal/identity"
	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

// Group is one derived conversation thread. Messages are time-ascending;
// FirstMessageAt/LastMessageAt bound every carried timestamp. Guest groups
// additionally carry a 1-based ordinal valid only within one aggregation
// batch.
type Group struct {
	SessionKey      string               `json:"sessionKey"`
	ContactIdentity string               `json:"contactIdentity"`
	ContactType     identity.ContactType `json:"contactType"`
	IsGuest         bool                 `json:"isGuest"`
	GuestOrdinal    int                  `json:"guestOrdinal,omitempty"`
	IPAddress       string               `json:"ipAddress,omitempty"`
	Location        string               `json:"location,omitempty"`
	Messages        []store.Message      `json:"messages"`
	FirstMessageAt  *time.Time           `json:"firstMessageAt,omitempty"`
	LastMessageAt   *time.Time           `json:"lastMessageAt,omitempty"`
	CreatedAt       *time.Time           `json:"createdAt,omitempty"`
}

// Aggregate groups messages by conversation key and derives per-group
// metadata. Duplicate message ids within a group are dropped, so
// re-aggregating the same input is idempotent.
func Aggregate(msgs []store.Message) []Group {
	index := make(map[string]int)
	seen := make(map[string]map[string]bool)
	var groups []Group

	// Pass 1: group by key, widen first/last via min/max over timestamps.
	// Messages without a timestamp join the group but never move the bounds.
	for _, m := range msgs {
		key := identity.SessionKey(m)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{SessionKey: key})
			seen[key] = make(map[string]bool)
		}
		if m.ID != "" {
			if seen[key][m.ID] {
				continue
			}
			seen[key][m.ID] = true
		}

		g := &groups[i]
		g.Messages = append(g.Messages, m)
		if m.Timestamp != nil {
			if g.FirstMessageAt == nil || m.Timestamp.Before(*g.FirstMessageAt) {
				t := *m.Timestamp
				g.FirstMessageAt = &t
			}
			if g.LastMessageAt == nil || m.Timestamp.After(*g.LastMessageAt) {
				t := *m.Timestamp
				g.LastMessageAt = &t
			}
		}
		if m.ConversationCreatedAt != nil {
			if g.CreatedAt == nil || m.ConversationCreatedAt.Before(*g.CreatedAt) {
				t := *m.ConversationCreatedAt
				g.CreatedAt = &t
			}
		}
	}

	// Pass 2: guest ordinals by ascending first activity, ties kept in
	// first-sight order. Ordinals are contiguous from 1 and only meaningful
	// within this batch.
	var guests []int
	for i := range groups {
		if identity.GroupGuest(groups[i].Messages) {
			groups[i].IsGuest = true
			guests = append(guests, i)
		}
	}
	sort.SliceStable(guests, func(a, b int) bool {
		return timeLess(groups[guests[a]].FirstMessageAt, groups[guests[b]].FirstMessageAt)
	})
	for ord, i := range guests {
		groups[i].GuestOrdinal = ord + 1
	}

	// Pass 3: per-group message order, contact display, and origin.
	for i := range groups {
		g := &groups[i]
		sortMessages(g.Messages)
		g.ContactType = identity.GroupKind(g.Messages)
		g.ContactIdentity = identity.Display(g.Messages, g.GuestOrdinal)
		g.IPAddress, g.Location = identity.Origin(g.Messages)
		if g.CreatedAt == nil {
			g.CreatedAt = g.FirstMessageAt
		}
	}

	// Most recently active conversation first.
	sort.SliceStable(groups, func(a, b int) bool {
		return timeLess(groups[b].LastMessageAt, groups[a].LastMessageAt)
	})
	return groups
}

// sortMessages orders a group's messages ascending by timestamp. The sort
// is stable and messages without a timestamp sink below timestamped ones,
// keeping their relative input order.
func sortMessages(msgs []store.Message) {
	sort.SliceStable(msgs, func(a, b int) bool {
		return timeLess(msgs[a].Timestamp, msgs[b].Timestamp)
	})
}

// timeLess orders two optional timestamps; a nil timestamp sorts after
// any concrete one and equal to another nil.
func timeLess(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}
