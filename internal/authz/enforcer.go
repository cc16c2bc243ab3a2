// Package authz decides administrative rights with a Casbin RBAC model.
// Subjects are lower-cased identity emails; the "admin" role is granted to
// the configured admin emails.
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/homeonmap/backend/internal/models"
)

//go:embed model.conf
var embeddedModel string

// Objects and actions checked by the API.
const (
	RoleAdmin = "admin"

	ObjListing = "listing"
	ObjEvents  = "events"

	ActDeleteAny = "delete_any"
	ActRead      = "read"
)

// Enforcer wraps a Casbin enforcer.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the policy and grants RoleAdmin to adminEmails.
func NewEnforcer(adminEmails []string) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	for _, p := range [][]string{
		{RoleAdmin, ObjListing, ActDeleteAny},
		{RoleAdmin, ObjEvents, ActRead},
	} {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", p, err)
		}
	}
	for _, email := range adminEmails {
		if _, err := e.AddGroupingPolicy(subject(email), RoleAdmin); err != nil {
			return nil, fmt.Errorf("grant admin to %s: %w", email, err)
		}
	}
	return &Enforcer{enforcer: e}, nil
}

// Allowed reports whether id may perform act on obj.
func (e *Enforcer) Allowed(id models.Identity, obj, act string) (bool, error) {
	if id.Email == "" {
		return false, nil
	}
	return e.enforcer.Enforce(subject(id.Email), obj, act)
}

func subject(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
