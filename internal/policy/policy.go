// Package policy holds the single authorization rule set consulted by the
// route gate (coarse, role only) and by services (fine, ownership and visibility).
package policy

import (
	"github.com/noah-isme/research-portal-api/internal/models"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

// Action is an operation attempted on a resource.
type Action string

const (
	ActionCreate    Action = "create"
	ActionRead      Action = "read"
	ActionList      Action = "list"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionDownload  Action = "download"
	ActionExport    Action = "export"
	ActionRun       Action = "run"
	ActionReconcile Action = "reconcile"
)

// Resource is the subject of a fine grained check.
type Resource struct {
	Kind    models.ResourceKind
	OwnerID string
	Public  bool
}

var ranks = map[models.UserRole]int{
	models.RoleStudent:    1,
	models.RoleFaculty:    2,
	models.RoleAdmin:      3,
	models.RoleSuperAdmin: 4,
}

// Rank orders roles by privilege; unknown roles rank 0.
func Rank(role models.UserRole) int {
	return ranks[role]
}

// AtLeast reports whether role is min or more privileged.
func AtLeast(role, min models.UserRole) bool {
	return Rank(role) > 0 && Rank(role) >= Rank(min)
}

// Privileged roles pass every ownership check.
func Privileged(role models.UserRole) bool {
	return AtLeast(role, models.RoleAdmin)
}

var (
	anyRole     = []models.UserRole{models.RoleStudent, models.RoleFaculty, models.RoleAdmin, models.RoleSuperAdmin}
	facultyUp   = []models.UserRole{models.RoleFaculty, models.RoleAdmin, models.RoleSuperAdmin}
	adminUp     = []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin}
	superAdmins = []models.UserRole{models.RoleSuperAdmin}
)

// coarse is the route level whitelist. A missing action means no role may perform it.
var coarse = map[models.ResourceKind]map[Action][]models.UserRole{
	models.KindSharedArchive: {
		ActionCreate: anyRole, ActionRead: anyRole, ActionList: anyRole,
		ActionUpdate: anyRole, ActionDelete: anyRole, ActionDownload: anyRole,
	},
	models.KindPersonalArchive: {
		ActionCreate: facultyUp, ActionRead: facultyUp, ActionList: facultyUp,
		ActionUpdate: facultyUp, ActionDelete: facultyUp, ActionDownload: facultyUp,
	},
	models.KindResearchRecord: {
		ActionCreate: facultyUp, ActionRead: anyRole, ActionList: anyRole,
		ActionUpdate: facultyUp, ActionDelete: facultyUp, ActionDownload: anyRole,
	},
	models.KindThesisProject: {
		ActionCreate: facultyUp, ActionRead: anyRole, ActionList: anyRole,
		ActionUpdate: facultyUp, ActionDelete: facultyUp, ActionDownload: anyRole,
	},
	models.KindIdentity: {
		ActionRead: anyRole, ActionUpdate: anyRole,
		ActionList: adminUp, ActionDelete: adminUp, ActionExport: adminUp,
	},
	models.KindAlgorithm: {
		ActionRun: anyRole,
	},
	models.KindStorage: {
		ActionReconcile: superAdmins,
	},
}

// RolesFor returns the roles admitted by the coarse gate for kind and action.
func RolesFor(kind models.ResourceKind, action Action) []models.UserRole {
	roles := coarse[kind][action]
	out := make([]models.UserRole, len(roles))
	copy(out, roles)
	return out
}

// Permits is the coarse gate: role membership only.
func Permits(role models.UserRole, kind models.ResourceKind, action Action) bool {
	for _, r := range coarse[kind][action] {
		if r == role {
			return true
		}
	}
	return false
}

// Allowed is the complete rule: the coarse gate plus ownership and visibility.
func Allowed(role models.UserRole, action Action, res Resource, callerID string) bool {
	if !Permits(role, res.Kind, action) {
		return false
	}
	owner := callerID != "" && callerID == res.OwnerID

	if res.Kind == models.KindIdentity && action == ActionDelete {
		return Privileged(role) && !owner
	}
	if Privileged(role) {
		return true
	}

	switch action {
	case ActionCreate, ActionList, ActionRun:
		return true
	case ActionRead, ActionDownload:
		switch res.Kind {
		case models.KindResearchRecord, models.KindThesisProject:
			return true
		case models.KindSharedArchive:
			return owner || res.Public
		default:
			return owner
		}
	case ActionUpdate, ActionDelete:
		return owner
	default:
		return false
	}
}

// Authorize returns a FORBIDDEN error when Allowed denies the action.
func Authorize(actor *models.JWTClaims, action Action, res Resource) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !Allowed(actor.Role, action, res, actor.UserID) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to "+string(action)+" this "+string(res.Kind))
	}
	return nil
}
