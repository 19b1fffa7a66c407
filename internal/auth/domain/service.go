package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	CreateAdmin(ctx context.Context, req CreateUserRequest) (*Admin, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	AdminLogin(ctx context.Context, req LoginRequest) (*LoginResult, error)
	SelectRole(ctx context.Context, principal *Principal, organisationID, roleID snowflake.ID) (*LoginResult, error)
	Authenticate(ctx context.Context, rawToken string) (*Principal, error)
	Logout(ctx context.Context, rawToken string) error
	CurrentUser(ctx context.Context, principal *Principal) (*User, error)
}

type CreateUserRequest struct {
	Email       string
	Password    string
	DisplayName string
}

type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
}

type LoginResult struct {
	RawToken  string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Abilities []string  `json:"abilities"`
	Guard     Guard     `json:"guard"`
}
