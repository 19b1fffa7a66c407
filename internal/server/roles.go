package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	authorizationdomain "github.com/smallbiznis/quickcart/internal/authorization/domain"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
)

type roleResponse struct {
	rbacdomain.Role
	Baseline []rbacdomain.PermissionKey `json:"baseline"`
}

type setBaselineRequest struct {
	Permissions []string `json:"permissions"`
}

type membershipLookup func(c *gin.Context, principal *authdomain.Principal, id snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*authorizationdomain.Membership, error)

// MyOrganisationRole returns the caller's membership of an organisation. Repeated role_key query
// params restrict the roles that qualify.
func (s *Server) MyOrganisationRole(c *gin.Context) {
	s.myRole(c, "orgId", func(c *gin.Context, principal *authdomain.Principal, id snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*authorizationdomain.Membership, error) {
		return s.authzSvc.RoleForOrganisation(c.Request.Context(), principal, id, roleKeys...)
	})
}

// MyBranchRole returns the caller's branch membership. Trade-scoped roles without trade codes
// are rejected when role_key names them.
func (s *Server) MyBranchRole(c *gin.Context) {
	s.myRole(c, "branchId", func(c *gin.Context, principal *authdomain.Principal, id snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*authorizationdomain.Membership, error) {
		return s.authzSvc.RoleForBranch(c.Request.Context(), principal, id, roleKeys...)
	})
}

func (s *Server) MyPropertyRole(c *gin.Context) {
	s.myRole(c, "propertyId", func(c *gin.Context, principal *authdomain.Principal, id snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*authorizationdomain.Membership, error) {
		return s.authzSvc.RoleForProperty(c.Request.Context(), principal, id, roleKeys...)
	})
}

func (s *Server) myRole(c *gin.Context, param string, lookup membershipLookup) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := pathSnowflakeID(c, param)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var roleKeys []rbacdomain.RoleKey
	for _, raw := range c.QueryArray("role_key") {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			roleKeys = append(roleKeys, rbacdomain.RoleKey(trimmed))
		}
	}

	membership, err := lookup(c, principal, id, roleKeys...)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

// ListRoles returns every seeded role with its current baseline.
func (s *Server) ListRoles(c *gin.Context) {
	roles, err := s.roles.ListRoles(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		baseline, err := s.catalog.BaselinePermissions(role.RoleKey)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		data = append(data, roleResponse{Role: role, Baseline: baseline})
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// SetRoleBaseline replaces the permissions new memberships of a role start with. Existing
// membership policies keep their own rows.
func (s *Server) SetRoleBaseline(c *gin.Context) {
	role, err := s.roles.FindRoleByKey(c.Request.Context(), rbacdomain.RoleKey(strings.TrimSpace(c.Param("roleKey"))))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setBaselineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.catalog.SetBaseline(role.RoleKey, permissionKeys(req.Permissions)); err != nil {
		AbortWithError(c, err)
		return
	}
	baseline, err := s.catalog.BaselinePermissions(role.RoleKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, roleResponse{Role: *role, Baseline: baseline})
}
