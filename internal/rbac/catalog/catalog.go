// Package catalog exposes the baseline permission set of every catalog role.
//
// Baselines live in casbin policies (`p, role:<roleKey>, <permissionKey>`) persisted through the
// gorm adapter, so operators can adjust them without a deploy. A membership's operative grant is
// its own policy row; the baseline is only the starting point copied into it.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// Catalog answers baseline permission questions for roles.
type Catalog struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func New(log *zap.Logger, enforcer *casbin.SyncedEnforcer) *Catalog {
	return &Catalog{
		log:      log.Named("rbac.catalog"),
		enforcer: enforcer,
	}
}

// BaselinePermissions returns the permission keys a role starts with, in catalog order.
func (c *Catalog) BaselinePermissions(roleKey rbacdomain.RoleKey) ([]rbacdomain.PermissionKey, error) {
	rules, err := c.enforcer.GetFilteredPolicy(0, subject(roleKey))
	if err != nil {
		return nil, err
	}

	granted := make(map[rbacdomain.PermissionKey]struct{}, len(rules))
	for _, rule := range rules {
		if len(rule) < 2 {
			continue
		}
		granted[rbacdomain.PermissionKey(rule[1])] = struct{}{}
	}

	keys := make([]rbacdomain.PermissionKey, 0, len(granted))
	for _, key := range rbacdomain.AllPermissionKeys {
		if _, ok := granted[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// SystemPermissions is the fixed elevated set handed to system administrators.
func (c *Catalog) SystemPermissions() ([]rbacdomain.PermissionKey, error) {
	return c.BaselinePermissions(rbacdomain.RoleSystem)
}

// SetBaseline replaces the baseline of a role. Unknown keys leave the baseline untouched.
func (c *Catalog) SetBaseline(roleKey rbacdomain.RoleKey, keys []rbacdomain.PermissionKey) error {
	sub := subject(roleKey)
	rules := make([][]string, 0, len(keys))
	seen := make(map[rbacdomain.PermissionKey]struct{}, len(keys))
	for _, key := range keys {
		if !rbacdomain.IsKnownPermission(key) {
			return fmt.Errorf("%w: %s", rbacdomain.ErrUnknownPermission, key)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rules = append(rules, []string{sub, string(key)})
	}

	if _, err := c.enforcer.RemoveFilteredPolicy(0, sub); err != nil {
		return err
	}
	if len(rules) > 0 {
		if _, err := c.enforcer.AddPolicies(rules); err != nil {
			return err
		}
	}
	c.log.Info("role baseline updated", zap.String("role_key", string(roleKey)), zap.Int("permissions", len(rules)))
	return nil
}

const subjectPrefix = "role:"

func subject(roleKey rbacdomain.RoleKey) string {
	return subjectPrefix + strings.ToLower(strings.TrimSpace(string(roleKey)))
}

// seedPolicies writes the catalog baselines into an empty policy store. Once any role policy
// exists the store belongs to operators and is left alone.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	existing, err := enforcer.GetPolicy()
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) > 0 && strings.HasPrefix(rule[0], subjectPrefix) {
			return nil
		}
	}

	var rules [][]string
	for _, spec := range rbacdomain.Catalog {
		for _, key := range spec.Baseline {
			rules = append(rules, []string{subject(spec.Key), string(key)})
		}
	}
	if len(rules) == 0 {
		return nil
	}
	_, err = enforcer.AddPolicies(rules)
	return err
}
