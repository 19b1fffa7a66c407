package domain

import rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"

// LevelSelector picks the access levels a resolution considers. The zero value selects every
// known level.
type LevelSelector struct {
	specific bool
	levels   []rbacdomain.AccessLevel
}

// AllLevels selects every known access level.
func AllLevels() LevelSelector {
	return LevelSelector{}
}

// Levels selects exactly the given levels. Calling it without arguments selects nothing.
func Levels(levels ...rbacdomain.AccessLevel) LevelSelector {
	return LevelSelector{specific: true, levels: append([]rbacdomain.AccessLevel(nil), levels...)}
}

// Contains reports whether level is selected.
func (s LevelSelector) Contains(level rbacdomain.AccessLevel) bool {
	if !s.specific {
		return true
	}
	for _, l := range s.levels {
		if l == level {
			return true
		}
	}
	return false
}

// PermissionSelector picks the permission keys a resolution reports. The zero value selects every
// known key.
type PermissionSelector struct {
	specific bool
	keys     []rbacdomain.PermissionKey
}

// AllPermissions selects every known permission key.
func AllPermissions() PermissionSelector {
	return PermissionSelector{}
}

// Permissions selects exactly the given keys.
func Permissions(keys ...rbacdomain.PermissionKey) PermissionSelector {
	return PermissionSelector{specific: true, keys: append([]rbacdomain.PermissionKey(nil), keys...)}
}

func (s PermissionSelector) Contains(key rbacdomain.PermissionKey) bool {
	if !s.specific {
		return rbacdomain.IsKnownPermission(key)
	}
	for _, k := range s.keys {
		if k == key {
			return true
		}
	}
	return false
}
