// Package ability converts between the positional ability strings stored on an access token and
// typed values.
//
// A token carries exactly three slots: role key, organisation id, role id. Any slot may hold the
// sentinel "unknown", meaning the holder has not selected a working role yet.
package ability

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Unknown is the wire sentinel for an unset slot.
const Unknown = "unknown"

const (
	slotRoleKey = iota
	slotOrganisationID
	slotRoleID
	slotCount
)

// Abilities is the typed view of a token's ability slots. Nil means unset.
type Abilities struct {
	RoleKey        *string
	OrganisationID *snowflake.ID
	RoleID         *snowflake.ID
}

// Parse never fails: absent, empty, "unknown" and malformed slots all map to nil.
func Parse(raw []string) Abilities {
	var out Abilities
	if key, ok := slot(raw, slotRoleKey); ok {
		out.RoleKey = &key
	}
	if id, ok := parseID(raw, slotOrganisationID); ok {
		out.OrganisationID = &id
	}
	if id, ok := parseID(raw, slotRoleID); ok {
		out.RoleID = &id
	}
	return out
}

// Encode renders a into the three-slot wire form, writing Unknown for nil slots.
func Encode(a Abilities) []string {
	out := []string{Unknown, Unknown, Unknown}
	if a.RoleKey != nil && strings.TrimSpace(*a.RoleKey) != "" {
		out[slotRoleKey] = strings.TrimSpace(*a.RoleKey)
	}
	if a.OrganisationID != nil && *a.OrganisationID > 0 {
		out[slotOrganisationID] = a.OrganisationID.String()
	}
	if a.RoleID != nil && *a.RoleID > 0 {
		out[slotRoleID] = a.RoleID.String()
	}
	return out
}

// Empty returns the abilities of a freshly issued token.
func Empty() []string {
	return Encode(Abilities{})
}

// HasRole reports whether a working role has been selected.
func (a Abilities) HasRole() bool {
	return a.RoleKey != nil
}

func slot(raw []string, idx int) (string, bool) {
	if idx >= len(raw) || idx >= slotCount {
		return "", false
	}
	value := strings.TrimSpace(raw[idx])
	if value == "" || strings.EqualFold(value, Unknown) {
		return "", false
	}
	return value, true
}

func parseID(raw []string, idx int) (snowflake.ID, bool) {
	value, ok := slot(raw, idx)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return snowflake.ID(parsed), true
}
