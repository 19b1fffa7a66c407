package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"github.com/smallbiznis/quickcart/pkg/db/pagination"
)

type createOrganisationRequest struct {
	Name string `json:"name"`
}

type createBranchRequest struct {
	Name string `json:"name"`
}

type createPropertyRequest struct {
	Name string `json:"name"`
}

type createTradeCodeRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type createMemberRequest struct {
	UserID     string   `json:"user_id"`
	RoleKey    string   `json:"role_key"`
	IsAdmin    bool     `json:"is_admin"`
	Extras     []string `json:"extras"`
	TradeCodes []string `json:"trade_codes"`
}

type syncPolicyRequest struct {
	Permissions []string `json:"permissions"`
}

func (s *Server) CreateOrganisation(c *gin.Context) {
	var req createOrganisationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.CreateOrganisation(c.Request.Context(), organizationdomain.CreateOrganisationRequest{
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (s *Server) CreateTradeCode(c *gin.Context) {
	var req createTradeCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	code, err := s.organizationSvc.CreateTradeCode(c.Request.Context(), req.Code, req.Name)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, code)
}

func (s *Server) CreateBranch(c *gin.Context) {
	orgID, err := pathSnowflakeID(c, "orgId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	branch, err := s.organizationSvc.CreateBranch(c.Request.Context(), organizationdomain.CreateBranchRequest{
		OrganisationID: orgID,
		Name:           strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, branch)
}

func (s *Server) CreateProperty(c *gin.Context) {
	branchID, err := pathSnowflakeID(c, "branchId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	property, err := s.organizationSvc.CreateProperty(c.Request.Context(), organizationdomain.CreatePropertyRequest{
		BranchID: branchID,
		Name:     strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, property)
}

func (s *Server) CreateOrganisationUser(c *gin.Context) {
	orgID, err := pathSnowflakeID(c, "orgId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseOptionalSnowflakeID(req.UserID)
	if err != nil || userID == nil {
		AbortWithError(c, organizationdomain.ErrInvalidUser)
		return
	}

	member, err := s.organizationSvc.CreateOrganisationUser(c.Request.Context(), organizationdomain.CreateOrganisationUserRequest{
		OrganisationID: orgID,
		UserID:         *userID,
		RoleKey:        rbacdomain.RoleKey(strings.TrimSpace(req.RoleKey)),
		IsAdmin:        req.IsAdmin,
		Extras:         permissionKeys(req.Extras),
		Grantor:        grantorFromContext(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (s *Server) CreateBranchUser(c *gin.Context) {
	branchID, err := pathSnowflakeID(c, "branchId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseOptionalSnowflakeID(req.UserID)
	if err != nil || userID == nil {
		AbortWithError(c, organizationdomain.ErrInvalidUser)
		return
	}

	member, err := s.organizationSvc.CreateBranchUser(c.Request.Context(), organizationdomain.CreateBranchUserRequest{
		BranchID:   branchID,
		UserID:     *userID,
		RoleKey:    rbacdomain.RoleKey(strings.TrimSpace(req.RoleKey)),
		IsAdmin:    req.IsAdmin,
		Extras:     permissionKeys(req.Extras),
		TradeCodes: req.TradeCodes,
		Grantor:    grantorFromContext(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (s *Server) RemoveOrganisationUser(c *gin.Context) {
	orgID, err := pathSnowflakeID(c, "orgId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := pathSnowflakeID(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.organizationSvc.RemoveOrganisationUser(c.Request.Context(), orgID, userID, grantorFromContext(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) RemoveBranchUser(c *gin.Context) {
	branchID, err := pathSnowflakeID(c, "branchId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := pathSnowflakeID(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.organizationSvc.RemoveBranchUser(c.Request.Context(), branchID, userID, grantorFromContext(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) SyncPolicyPermissions(c *gin.Context) {
	policyID, err := pathSnowflakeID(c, "policyId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req syncPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	policy, err := s.organizationSvc.SyncPolicyPermissions(c.Request.Context(), policyID, permissionKeys(req.Permissions), grantorFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (s *Server) ListMembers(c *gin.Context) {
	orgID, err := pathSnowflakeID(c, "orgId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.ListMembers(c.Request.Context(), orgID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Members, "page_info": resp.PageInfo})
}

func (s *Server) ListMyOrganisations(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if principal.IsAdmin() {
		c.JSON(http.StatusOK, gin.H{"data": []organizationdomain.OrganisationListResponseItem{}})
		return
	}

	items, err := s.organizationSvc.ListOrganisationsByUser(c.Request.Context(), principal.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func permissionKeys(raw []string) []rbacdomain.PermissionKey {
	keys := make([]rbacdomain.PermissionKey, 0, len(raw))
	for _, value := range raw {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			keys = append(keys, rbacdomain.PermissionKey(trimmed))
		}
	}
	return keys
}
