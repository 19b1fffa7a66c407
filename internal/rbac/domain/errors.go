package domain

import "errors"

var (
	ErrRoleNotFound      = errors.New("role_not_found")
	ErrUnknownPermission = errors.New("unknown_permission")
	ErrUnknownRole       = errors.New("unknown_role")
)

const CodeTradeCodesRequired = "trade_codes_required"

// ValidationError reports a role-specific rule a membership does not satisfy.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// TradeCodesRequired is returned when a trade-scoped role has no trade codes.
func TradeCodesRequired(roleKey RoleKey) *ValidationError {
	return &ValidationError{
		Field:   "trade_codes",
		Code:    CodeTradeCodesRequired,
		Message: "role " + string(roleKey) + " requires at least one trade code",
	}
}
