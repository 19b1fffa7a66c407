package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quickcart/internal/auth/ability"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	authorizationdomain "github.com/smallbiznis/quickcart/internal/authorization/domain"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type selectRoleRequest struct {
	OrganisationID string `json:"organisation_id"`
	RoleID         string `json:"role_id"`
}

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type abilitiesView struct {
	RoleKey        *string       `json:"role_key"`
	OrganisationID *snowflake.ID `json:"organisation_id"`
	RoleID         *snowflake.ID `json:"role_id"`
}

type meResponse struct {
	User       *authdomain.User                `json:"user,omitempty"`
	Guard      authdomain.Guard                `json:"guard"`
	Abilities  abilitiesView                   `json:"abilities"`
	Resolution *authorizationdomain.Resolution `json:"resolution"`
}

func (s *Server) Login(c *gin.Context) {
	s.login(c, authdomain.GuardUser, s.authsvc.Login)
}

func (s *Server) AdminLogin(c *gin.Context) {
	s.login(c, authdomain.GuardAdmin, s.authsvc.AdminLogin)
}

type loginFunc func(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error)

func (s *Server) login(c *gin.Context, guard authdomain.Guard, fn loginFunc) {
	var req LoginRequest
	if err := c.ShouldBindBodyWithJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email := strings.TrimSpace(req.Email)
	if s.loginLimiter.Enabled() {
		release, ok, err := s.loginLimiter.LockAccount(c.Request.Context(), string(guard), email)
		if err == nil && !ok {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		defer release()
	}

	result, err := fn(c.Request.Context(), authdomain.LoginRequest{
		Email:     email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.tokens.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, result)
}

func (s *Server) Logout(c *gin.Context) {
	raw, ok := s.tokens.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authsvc.Logout(c.Request.Context(), raw); err != nil {
		AbortWithError(c, err)
		return
	}
	s.tokens.Clear(c)
	c.Status(http.StatusNoContent)
}

// SelectRole swaps the caller's token for one bound to a working organisation and role.
func (s *Server) SelectRole(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req selectRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	orgID, err := snowflake.ParseString(strings.TrimSpace(req.OrganisationID))
	if err != nil || orgID <= 0 {
		AbortWithError(c, newValidationError("organisation_id", "invalid_organisation_id", "invalid organisation_id"))
		return
	}
	roleID, err := snowflake.ParseString(strings.TrimSpace(req.RoleID))
	if err != nil || roleID <= 0 {
		AbortWithError(c, newValidationError("role_id", "invalid_role_id", "invalid role_id"))
		return
	}

	result, err := s.authsvc.SelectRole(c.Request.Context(), principal, orgID, roleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.tokens.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, result)
}

// Me returns the caller's resolution. organisation_id, branch_id and property_id query params
// narrow the scope.
func (s *Server) Me(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	hint, err := scopeFromQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.authzSvc.Resolve(c.Request.Context(), principal,
		authorizationdomain.AllLevels(), authorizationdomain.AllPermissions(), hint)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	parsed := ability.Parse(principal.Abilities)
	resp := meResponse{
		Guard: principal.Guard,
		Abilities: abilitiesView{
			RoleKey:        parsed.RoleKey,
			OrganisationID: parsed.OrganisationID,
			RoleID:         parsed.RoleID,
		},
		Resolution: res,
	}
	if !principal.IsAdmin() {
		user, err := s.authsvc.CurrentUser(c.Request.Context(), principal)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		resp.User = user
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.authsvc.CreateUser(c.Request.Context(), authdomain.CreateUserRequest{
		Email:       strings.TrimSpace(req.Email),
		Password:    req.Password,
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func scopeFromQuery(c *gin.Context) (authorizationdomain.ScopeHint, error) {
	var hint authorizationdomain.ScopeHint
	for _, field := range []struct {
		name   string
		target **snowflake.ID
	}{
		{name: "organisation_id", target: &hint.OrganisationID},
		{name: "branch_id", target: &hint.BranchID},
		{name: "property_id", target: &hint.PropertyID},
	} {
		id, err := parseOptionalSnowflakeID(c.Query(field.name))
		if err != nil {
			return hint, newValidationError(field.name, "invalid_"+field.name, "invalid "+field.name)
		}
		*field.target = id
	}
	return hint, nil
}
