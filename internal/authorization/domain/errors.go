package domain

import "errors"

var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrSystemAdminNotAllowed = errors.New("system_admin_not_allowed")
)
