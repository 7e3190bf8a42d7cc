// Package identity — conversation key and contact identity resolution.
//
// Raw messages carry a loose bag of optional contact fields (phone, email,
// name, guest flags). This package resolves them once into a stable
// conversation key and a discriminated contact type, so the rendering
// layer never re-derives identity ad hoc.
//
// Display priority (first match wins):
//
//	exact phone > phone > email > name > "Guest {n}" > "Unknown"
//
// A name is rejected as a display identity when it contains "guest"
// case-insensitively — such names are placeholders in the source data,
// not real names.
package identity

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/opsdesk/internal/store"
)

// ContactType discriminates how a conversation participant is identified.
type ContactType string

const (
	ContactPhone   ContactType = "phone"
	ContactEmail   ContactType = "email"
	ContactGuest   ContactType = "guest"
	ContactUnknown ContactType = "unknown"
)

// UnknownKey is the conversation key for messages with no session id and
// no contact identifier.
const UnknownKey = "unknown"

// SessionKey returns the owning conversation key for a message:
// the session id if present, else the contact identifier, else UnknownKey.
func SessionKey(msg store.Message) string {
	if msg.SessionID != "" {
		return msg.SessionID
	}
	if msg.Contact != "" {
		return msg.Contact
	}
	return UnknownKey
}

// IsGuest reports whether a message belongs to a guest participant:
// no phone and no email, and either an explicit guest marker or no name
// at all.
func IsGuest(msg store.Message) bool {
	if msg.Phone != "" || msg.Email != "" {
		return false
	}
	if msg.IsGuest || msg.ContactType == string(ContactGuest) {
		return true
	}
	return msg.Name == ""
}

// Kind resolves the discriminated contact type for a message.
func Kind(msg store.Message) ContactType {
	switch {
	case msg.Phone != "" || msg.ExactPhone != "":
		return ContactPhone
	case msg.Email != "":
		return ContactEmail
	case IsGuest(msg):
		return ContactGuest
	default:
		return ContactUnknown
	}
}

// nameUsable rejects placeholder names containing "guest".
func nameUsable(name string) bool {
	return name != "" && !strings.Contains(strings.ToLower(name), "guest")
}

// Display resolves the contact display string for a group of messages
// sharing one conversation key. ordinal is the 1-based guest ordinal for
// the group's aggregation batch (ignored unless the guest fallback fires).
func Display(msgs []store.Message, ordinal int) string {
	var phone, email, name string
	for _, m := range msgs {
		if m.ExactPhone != "" {
			return m.ExactPhone
		}
		if phone == "" {
			phone = m.Phone
		}
		if email == "" {
			email = m.Email
		}
		if name == "" && nameUsable(m.Name) {
			name = m.Name
		}
	}

	switch {
	case phone != "":
		return phone
	case email != "":
		return email
	case name != "":
		return name
	case ordinal > 0:
		return fmt.Sprintf("Guest %d", ordinal)
	default:
		return "Unknown"
	}
}

// GroupGuest reports whether a whole group resolves to the guest
// fallback: no exact phone, phone, email, or usable name anywhere in its
// messages. Exactly these groups receive a guest ordinal.
func GroupGuest(msgs []store.Message) bool {
	for _, m := range msgs {
		if m.ExactPhone != "" || m.Phone != "" || m.Email != "" || nameUsable(m.Name) {
			return false
		}
	}
	return true
}

// GroupKind resolves the discriminated contact type for a group, with
// phone taking precedence over email regardless of message order.
func GroupKind(msgs []store.Message) ContactType {
	var hasPhone, hasEmail, hasName bool
	for _, m := range msgs {
		hasPhone = hasPhone || m.ExactPhone != "" || m.Phone != ""
		hasEmail = hasEmail || m.Email != ""
		hasName = hasName || nameUsable(m.Name)
	}
	switch {
	case hasPhone:
		return ContactPhone
	case hasEmail:
		return ContactEmail
	case !hasName:
		return ContactGuest
	default:
		return ContactUnknown
	}
}

// Origin returns the IP address and location for a group: the earliest
// user-authored message carrying a non-empty IP wins, and later user
// messages never overwrite it. Agent and bot messages never contribute.
// msgs must already be sorted ascending by timestamp.
func Origin(msgs []store.Message) (ip, location string) {
	for _, m := range msgs {
		if m.Sender != store.SenderUser {
			continue
		}
		if m.IPAddress == "" {
			continue
		}
		return m.IPAddress, m.Location
	}
	return "", ""
}
