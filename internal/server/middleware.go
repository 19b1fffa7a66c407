package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	authorizationdomain "github.com/smallbiznis/quickcart/internal/authorization/domain"
	obscontext "github.com/smallbiznis/quickcart/internal/observability/context"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"go.uber.org/zap"
)

const (
	contextPrincipalKey  = "principal"
	contextResolutionKey = "resolution"
	contextRawTokenKey   = "raw_token"
	contextGrantorKey    = "grantor"
)

// branchRoleKeys are the roles a branch membership may hold. Passing them to RoleForBranch
// applies the trade code rule of trade-scoped roles.
var branchRoleKeys = rbacdomain.RoleKeysAt(rbacdomain.AccessLevelBranch, rbacdomain.AccessLevelProperty)

// scopeFunc derives the resolver scope of a request from its path.
type scopeFunc func(c *gin.Context) (authorizationdomain.ScopeHint, error)

// BearerAuthRequired authenticates the access token and stores the principal on the request.
func (s *Server) BearerAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := s.tokens.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), string(principal.Guard), principal.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextPrincipalKey, principal)
		c.Set(contextRawTokenKey, raw)
		c.Next()
	}
}

// RequireSystemAdmin admits admin-guard callers only.
func (s *Server) RequireSystemAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		res, err := s.authzSvc.Resolve(c.Request.Context(), principal,
			authorizationdomain.AllLevels(), authorizationdomain.AllPermissions(), authorizationdomain.ScopeHint{})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !res.IsSystemAdmin {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Set(contextResolutionKey, res)
		c.Next()
	}
}

// RequireOrganisationPermission admits callers whose own organisation membership grants key.
// Branch memberships inside the organisation do not count, even when their policy carries key.
func (s *Server) RequireOrganisationPermission(key rbacdomain.PermissionKey, scope scopeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, hint, ok := s.scopedPrincipal(c, scope)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		res, err := s.authzSvc.Resolve(ctx, principal,
			authorizationdomain.Levels(rbacdomain.AccessLevelOrganisation), authorizationdomain.Permissions(key), hint)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !res.HasPermission(key) || hint.OrganisationID == nil {
			AbortWithError(c, ErrForbidden)
			return
		}

		membership, err := s.authzSvc.RoleForOrganisation(ctx, principal, *hint.OrganisationID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !membership.HasPermission(key) {
			AbortWithError(c, ErrForbidden)
			return
		}
		s.admit(c, res, principal, membership.Role.RoleAccessLevel)
	}
}

// RequireBranchPermission admits organisation members granted key and members of the branch
// itself. Branch members go through RoleForBranch, so trade-scoped roles without trade codes
// are refused.
func (s *Server) RequireBranchPermission(key rbacdomain.PermissionKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, hint, ok := s.scopedPrincipal(c, s.branchScope)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		res, err := s.authzSvc.Resolve(ctx, principal,
			authorizationdomain.AllLevels(), authorizationdomain.Permissions(key), hint)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !res.HasPermission(key) {
			AbortWithError(c, ErrForbidden)
			return
		}

		var membership *authorizationdomain.Membership
		if hasLevel(res.AccessLevels, rbacdomain.AccessLevelOrganisation) {
			membership, err = s.authzSvc.RoleForOrganisation(ctx, principal, *hint.OrganisationID)
			if err != nil {
				AbortWithError(c, err)
				return
			}
		}
		if !membership.HasPermission(key) {
			membership, err = s.authzSvc.RoleForBranch(ctx, principal, *hint.BranchID, branchRoleKeys...)
			if err != nil {
				AbortWithError(c, err)
				return
			}
			if !membership.HasPermission(key) {
				AbortWithError(c, ErrForbidden)
				return
			}
		}
		s.admit(c, res, principal, membership.Role.RoleAccessLevel)
	}
}

func (s *Server) scopedPrincipal(c *gin.Context, scope scopeFunc) (*authdomain.Principal, authorizationdomain.ScopeHint, bool) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, authorizationdomain.ScopeHint{}, false
	}
	hint, err := scope(c)
	if err != nil {
		AbortWithError(c, err)
		return nil, authorizationdomain.ScopeHint{}, false
	}
	return principal, hint, true
}

// admit records the decision and the grantor that downstream grants are checked against.
func (s *Server) admit(c *gin.Context, res *authorizationdomain.Resolution, principal *authdomain.Principal, level rbacdomain.AccessLevel) {
	if res.Role != nil {
		ctx := obscontext.WithRoleKey(c.Request.Context(), string(res.Role.RoleKey))
		c.Request = c.Request.WithContext(ctx)
	}
	c.Set(contextResolutionKey, res)
	c.Set(contextGrantorKey, &organizationdomain.Grantor{
		UserID: principal.UserID,
		Level:  level,
	})
	c.Next()
}

func grantorFromContext(c *gin.Context) *organizationdomain.Grantor {
	value, ok := c.Get(contextGrantorKey)
	if !ok {
		return nil
	}
	grantor, _ := value.(*organizationdomain.Grantor)
	return grantor
}

func hasLevel(levels []rbacdomain.AccessLevel, want rbacdomain.AccessLevel) bool {
	for _, level := range levels {
		if level == want {
			return true
		}
	}
	return false
}

// LoginRateLimit throttles credential checks per client address and account.
func (s *Server) LoginRateLimit(guard string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.loginLimiter.Enabled() {
			c.Next()
			return
		}

		var req LoginRequest
		_ = c.ShouldBindBodyWithJSON(&req)

		res, err := s.loginLimiter.Allow(c.Request.Context(), guard, c.ClientIP(), req.Email)
		if err != nil {
			s.log.Warn("login rate limit failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+0.5)))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func (s *Server) organisationScope(c *gin.Context) (authorizationdomain.ScopeHint, error) {
	orgID, err := pathSnowflakeID(c, "orgId")
	if err != nil {
		return authorizationdomain.ScopeHint{}, err
	}
	return authorizationdomain.ScopeHint{OrganisationID: &orgID}, nil
}

// branchScope narrows to the branch and its organisation, so organisation roles apply too.
func (s *Server) branchScope(c *gin.Context) (authorizationdomain.ScopeHint, error) {
	branchID, err := pathSnowflakeID(c, "branchId")
	if err != nil {
		return authorizationdomain.ScopeHint{}, err
	}
	branch, err := s.orgRepo.FindBranch(c.Request.Context(), branchID)
	if err != nil {
		return authorizationdomain.ScopeHint{}, err
	}
	orgID := branch.OrganisationID
	return authorizationdomain.ScopeHint{OrganisationID: &orgID, BranchID: &branchID}, nil
}

func (s *Server) policyScope(c *gin.Context) (authorizationdomain.ScopeHint, error) {
	policyID, err := pathSnowflakeID(c, "policyId")
	if err != nil {
		return authorizationdomain.ScopeHint{}, err
	}
	orgID, err := s.orgRepo.PolicyOrganisationID(c.Request.Context(), policyID)
	if err != nil {
		return authorizationdomain.ScopeHint{}, err
	}
	return authorizationdomain.ScopeHint{OrganisationID: &orgID}, nil
}

func principalFromContext(c *gin.Context) (*authdomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*authdomain.Principal)
	return principal, ok && principal != nil
}

func pathSnowflakeID(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}
