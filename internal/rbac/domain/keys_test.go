package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessLevelAbove(t *testing.T) {
	assert.True(t, AccessLevelSystem.Above(AccessLevelOrganisation))
	assert.True(t, AccessLevelOrganisation.Above(AccessLevelBranch))
	assert.True(t, AccessLevelBranch.Above(AccessLevelProperty))
	assert.False(t, AccessLevelBranch.Above(AccessLevelBranch))
	assert.False(t, AccessLevelProperty.Above(AccessLevelOrganisation))
	assert.False(t, AccessLevel("galaxy").Above(AccessLevelProperty))
}

func TestPermissionLevel(t *testing.T) {
	tests := []struct {
		key  PermissionKey
		want AccessLevel
	}{
		{PermOrganisationUpdate, AccessLevelOrganisation},
		{PermBranchCreate, AccessLevelOrganisation},
		{PermOrganisationView, AccessLevelOrganisation},
		{PermUserCreate, AccessLevelBranch},
		{PermBranchUpdate, AccessLevelBranch},
		{PermPropertyDefectApproval, AccessLevelBranch},
		{PermCommonAreaDefectApproval, AccessLevelProperty},
		{PermAppAccess, AccessLevelProperty},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			assert.Equal(t, tt.want, PermissionLevel(tt.key))
		})
	}
}

func TestRoleKeysAt(t *testing.T) {
	assert.Equal(t, []RoleKey{RoleOrganisationAdmin, RoleOrganisationManager}, RoleKeysAt(AccessLevelOrganisation))
	assert.Equal(t, []RoleKey{
		RoleBranchAdmin,
		RoleBranchManager,
		RoleBranchAuditor,
		RoleBranchSubContractor,
		RolePropertyOwner,
	}, RoleKeysAt(AccessLevelBranch, AccessLevelProperty))
	assert.Empty(t, RoleKeysAt())
}
