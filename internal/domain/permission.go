package domain

import "strings"

// WildcardPermission grants every permission
const WildcardPermission = "*"

// DefaultRolePermissions is the built-in role -> permission table
func DefaultRolePermissions() map[UserRole][]string {
	return map[UserRole][]string{
		UserRoleAdmin: {"products:*", "workflow:*", "users:*", "audit:*"},
		UserRoleEditor: {
			"products:read", "products:create", "products:write",
			"workflow:read", "workflow:submit",
			"audit:read", "users:read",
		},
		UserRoleReviewer: {
			"products:read",
			"workflow:read", "workflow:review", "workflow:approve", "workflow:reject",
			"audit:read", "users:read",
		},
		UserRoleViewer: {"products:read", "workflow:read", "audit:read", "users:read"},
	}
}

// DefaultActionPermissions is the built-in action -> required permissions table
func DefaultActionPermissions() map[WorkflowAction][]string {
	return map[WorkflowAction][]string{
		ActionCreate:         {"products:create"},
		ActionEdit:           {"products:write"},
		ActionDelete:         {"products:delete"},
		ActionView:           {"products:read"},
		ActionSubmit:         {"workflow:submit"},
		ActionApprove:        {"workflow:approve"},
		ActionReject:         {"workflow:reject"},
		ActionPublish:        {"workflow:publish"},
		ActionUnpublish:      {"workflow:unpublish"},
		ActionReopen:         {"workflow:reopen"},
		ActionAssignReviewer: {"workflow:assign"},
		ActionBulkEdit:       {"products:write", "products:bulk"},
		ActionViewAudit:      {"audit:read"},
		ActionExportAudit:    {"audit:export"},
		ActionManageAudit:    {"audit:manage"},
		ActionViewUsers:      {"users:read"},
		ActionManageUsers:    {"users:write"},
	}
}

// PermissionResolver answers (role, action) permission questions from static tables.
// It is read-only after construction and safe for concurrent use.
type PermissionResolver struct {
	roles   map[UserRole][]string
	actions map[WorkflowAction][]string
}

// NewPermissionResolver builds a resolver from the given tables. Nil tables fall back to
// the defaults.
func NewPermissionResolver(roles map[UserRole][]string, actions map[WorkflowAction][]string) *PermissionResolver {
	if roles == nil {
		roles = DefaultRolePermissions()
	}
	if actions == nil {
		actions = DefaultActionPermissions()
	}
	r := &PermissionResolver{
		roles:   make(map[UserRole][]string, len(roles)),
		actions: make(map[WorkflowAction][]string, len(actions)),
	}
	for role, perms := range roles {
		r.roles[role] = append([]string(nil), perms...)
	}
	for action, perms := range actions {
		r.actions[action] = append([]string(nil), perms...)
	}
	return r
}

// HasPermission reports whether role satisfies every permission the action requires.
// Unknown roles and actions yield false.
func (r *PermissionResolver) HasPermission(role UserRole, action WorkflowAction) bool {
	required, ok := r.actions[action]
	if !ok || len(required) == 0 {
		return false
	}
	return r.HasAllPermissions(role, required)
}

// HasAllPermissions reports whether role satisfies every permission string in required
func (r *PermissionResolver) HasAllPermissions(role UserRole, required []string) bool {
	for _, perm := range required {
		if !r.HasPermissionString(role, perm) {
			return false
		}
	}
	return true
}

// HasPermissionString reports whether role holds perm exactly, through its resource
// wildcard, or through "*".
func (r *PermissionResolver) HasPermissionString(role UserRole, perm string) bool {
	granted, ok := r.roles[role]
	if !ok || perm == "" {
		return false
	}
	for _, g := range granted {
		if permissionMatches(g, perm) {
			return true
		}
	}
	return false
}

// RequiredPermissions returns a copy of the permissions an action requires
func (r *PermissionResolver) RequiredPermissions(action WorkflowAction) []string {
	return append([]string(nil), r.actions[action]...)
}

// Permissions returns a copy of the permissions granted to role
func (r *PermissionResolver) Permissions(role UserRole) []string {
	return append([]string(nil), r.roles[role]...)
}

func permissionMatches(granted, required string) bool {
	if granted == WildcardPermission || granted == required {
		return true
	}
	resource, _, ok := strings.Cut(required, ":")
	if !ok {
		return false
	}
	return granted == resource+":*"
}
