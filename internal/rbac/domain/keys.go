package domain

import "strings"

// AccessLevel is the scope a role applies to.
type AccessLevel string

const (
	AccessLevelSystem       AccessLevel = "system"
	AccessLevelOrganisation AccessLevel = "organisation"
	AccessLevelBranch       AccessLevel = "branch"
	AccessLevelProperty     AccessLevel = "property"
)

// AllAccessLevels lists every known access level.
var AllAccessLevels = []AccessLevel{
	AccessLevelSystem,
	AccessLevelOrganisation,
	AccessLevelBranch,
	AccessLevelProperty,
}

func (l AccessLevel) rank() int {
	for i, level := range AllAccessLevels {
		if level == l {
			return i
		}
	}
	return len(AllAccessLevels)
}

// Above reports whether l is a wider scope than other. System is the widest.
func (l AccessLevel) Above(other AccessLevel) bool {
	return l.rank() < other.rank()
}

// ParseAccessLevel normalizes raw into a known access level.
func ParseAccessLevel(raw string) (AccessLevel, bool) {
	value := AccessLevel(strings.ToLower(strings.TrimSpace(raw)))
	for _, level := range AllAccessLevels {
		if level == value {
			return level, true
		}
	}
	return "", false
}

// RoleKey is the stable identifier of a catalog role.
type RoleKey string

const (
	RoleSystem              RoleKey = "system"
	RoleOrganisationAdmin   RoleKey = "organisation_admin"
	RoleOrganisationManager RoleKey = "organisation_manager"
	RoleBranchAdmin         RoleKey = "branch_admin"
	RoleBranchManager       RoleKey = "branch_manager"
	RoleBranchAuditor       RoleKey = "branch_auditor"
	RoleBranchSubContractor RoleKey = "branch_sub_contractor"
	RolePropertyOwner       RoleKey = "property_owner"
)

// PermissionKey is the stable identifier of a permission.
type PermissionKey string

const (
	PermOrganisationView         PermissionKey = "organisation_view"
	PermOrganisationUpdate       PermissionKey = "organisation_update"
	PermBranchView               PermissionKey = "branch_view"
	PermBranchCreate             PermissionKey = "branch_create"
	PermBranchUpdate             PermissionKey = "branch_update"
	PermUserView                 PermissionKey = "user_view"
	PermUserCreate               PermissionKey = "user_create"
	PermPropertyView             PermissionKey = "property_view"
	PermPropertyDefectApproval   PermissionKey = "property_defect_approval"
	PermCommonAreaDefectApproval PermissionKey = "common_area_defect_approval"
	PermAppAccess                PermissionKey = "app_access"
	PermWebAccess                PermissionKey = "web_access"
)

// AllPermissionKeys lists every known permission key.
var AllPermissionKeys = []PermissionKey{
	PermOrganisationView,
	PermOrganisationUpdate,
	PermBranchView,
	PermBranchCreate,
	PermBranchUpdate,
	PermUserView,
	PermUserCreate,
	PermPropertyView,
	PermPropertyDefectApproval,
	PermCommonAreaDefectApproval,
	PermAppAccess,
	PermWebAccess,
}

// ToggleablePermissions may be granted individually on top of a role baseline.
var ToggleablePermissions = []PermissionKey{PermAppAccess, PermWebAccess}

// IsKnownPermission reports whether key is part of the seeded catalog.
func IsKnownPermission(key PermissionKey) bool {
	for _, known := range AllPermissionKeys {
		if known == key {
			return true
		}
	}
	return false
}

// RoleSpec describes a seeded role and its baseline permission set.
type RoleSpec struct {
	Key         RoleKey
	Name        string
	AccessLevel AccessLevel
	Baseline    []PermissionKey
}

// Catalog is the seeded role catalog.
var Catalog = []RoleSpec{
	{
		Key:         RoleSystem,
		Name:        "System",
		AccessLevel: AccessLevelSystem,
		Baseline:    []PermissionKey{PermPropertyDefectApproval, PermCommonAreaDefectApproval},
	},
	{
		Key:         RoleOrganisationAdmin,
		Name:        "Organisation Admin",
		AccessLevel: AccessLevelOrganisation,
		Baseline: []PermissionKey{
			PermOrganisationView, PermOrganisationUpdate,
			PermBranchView, PermBranchCreate, PermBranchUpdate,
			PermUserView, PermUserCreate, PermPropertyView,
		},
	},
	{
		Key:         RoleOrganisationManager,
		Name:        "Organisation Manager",
		AccessLevel: AccessLevelOrganisation,
		Baseline:    []PermissionKey{PermOrganisationView, PermBranchView, PermUserView, PermPropertyView},
	},
	{
		Key:         RoleBranchAdmin,
		Name:        "Branch Admin",
		AccessLevel: AccessLevelBranch,
		Baseline:    []PermissionKey{PermBranchView, PermBranchUpdate, PermUserView, PermUserCreate, PermPropertyView},
	},
	{
		Key:         RoleBranchManager,
		Name:        "Branch Manager",
		AccessLevel: AccessLevelBranch,
		Baseline:    []PermissionKey{PermBranchView, PermUserView, PermPropertyView},
	},
	{
		Key:         RoleBranchAuditor,
		Name:        "Branch Auditor",
		AccessLevel: AccessLevelBranch,
		Baseline:    []PermissionKey{PermBranchView, PermPropertyView, PermPropertyDefectApproval},
	},
	{
		Key:         RoleBranchSubContractor,
		Name:        "Branch Sub Contractor",
		AccessLevel: AccessLevelBranch,
		Baseline:    []PermissionKey{PermBranchView, PermPropertyView},
	},
	{
		Key:         RolePropertyOwner,
		Name:        "Property Owner",
		AccessLevel: AccessLevelProperty,
		Baseline:    []PermissionKey{PermPropertyView, PermCommonAreaDefectApproval},
	},
}

// RoleKeysAt lists the catalog roles of the given levels, in catalog order.
func RoleKeysAt(levels ...AccessLevel) []RoleKey {
	keys := make([]RoleKey, 0, len(Catalog))
	for _, spec := range Catalog {
		for _, level := range levels {
			if spec.AccessLevel == level {
				keys = append(keys, spec.Key)
				break
			}
		}
	}
	return keys
}

// PermissionLevel is the most local level at which a catalog role carries key in its baseline.
// Keys outside every baseline, such as the toggleable ones, sit at the property level.
func PermissionLevel(key PermissionKey) AccessLevel {
	level := AccessLevelProperty
	found := false
	for _, spec := range Catalog {
		if spec.AccessLevel == AccessLevelSystem {
			continue
		}
		for _, granted := range spec.Baseline {
			if granted != key {
				continue
			}
			if !found || level.Above(spec.AccessLevel) {
				level = spec.AccessLevel
				found = true
			}
		}
	}
	return level
}
