package permissions

import (
	"sort"
	"strings"

	"github.com/marketforge/marketforge/internal/models"
)

// Definition describes an admin permission.
type Definition struct {
	Key    string `json:"key"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Label  string `json:"label"`
	Module string `json:"module"`
}

// Key builds a permission key from method and path.
func Key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// NormalizePermissions trims, de-duplicates, and sorts permissions.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}

// Definitions returns a copy of all permission definitions.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// ForRole returns the sorted permission keys granted to role.
func ForRole(role string) []string {
	granted := roleGrants[role]
	out := make([]string, 0, len(granted))
	for key := range granted {
		out = append(out, key)
	}
	return NormalizePermissions(out)
}

// RoleAllows reports whether role may call the route identified by key.
// Routes without a definition are allowed for every staff role.
func RoleAllows(role, key string) bool {
	if !models.IsStaffRole(role) {
		return false
	}
	if _, defined := definitionMap[key]; !defined {
		return true
	}
	_, ok := roleGrants[role][key]
	return ok
}

// newDefinition builds a Definition with a normalized key.
func newDefinition(method, path, label, module string) Definition {
	upperMethod := strings.ToUpper(method)
	return Definition{
		Key:    Key(upperMethod, path),
		Method: upperMethod,
		Path:   path,
		Label:  label,
		Module: module,
	}
}

// definitions is the ordered list of permission definitions.
var definitions = []Definition{
	newDefinition("GET", "/api/admin/dashboard/stats", "View Dashboard Stats", "Dashboard"),

	newDefinition("POST", "/api/admin/users", "Create User", "Users"),
	newDefinition("GET", "/api/admin/users", "List Users", "Users"),
	newDefinition("GET", "/api/admin/users/:id", "Get User", "Users"),
	newDefinition("PUT", "/api/admin/users/:id", "Update User", "Users"),
	newDefinition("DELETE", "/api/admin/users/:id", "Delete User", "Users"),
	newDefinition("POST", "/api/admin/users/:id/suspend", "Suspend User", "Users"),
	newDefinition("POST", "/api/admin/users/:id/unsuspend", "Unsuspend User", "Users"),
	newDefinition("PUT", "/api/admin/users/:id/subscription", "Change Subscription", "Users"),
	newDefinition("POST", "/api/admin/users/:id/usage/recompute", "Recompute Usage", "Users"),

	newDefinition("GET", "/api/admin/usage", "List Usage", "Usage"),
	newDefinition("GET", "/api/admin/usage/:id", "Get Usage Entry", "Usage"),

	newDefinition("POST", "/api/admin/plans", "Create Plan", "Plans"),
	newDefinition("GET", "/api/admin/plans", "List Plans", "Plans"),
	newDefinition("GET", "/api/admin/plans/:id", "Get Plan", "Plans"),
	newDefinition("PUT", "/api/admin/plans/:id", "Update Plan", "Plans"),
	newDefinition("DELETE", "/api/admin/plans/:id", "Delete Plan", "Plans"),

	newDefinition("POST", "/api/admin/settings", "Create Setting", "Settings"),
	newDefinition("GET", "/api/admin/settings", "List Settings", "Settings"),
	newDefinition("GET", "/api/admin/settings/:key", "Get Setting", "Settings"),
	newDefinition("PUT", "/api/admin/settings/:key", "Update Setting", "Settings"),
	newDefinition("DELETE", "/api/admin/settings/:key", "Delete Setting", "Settings"),

	newDefinition("GET", "/api/admin/permissions", "List Permissions", "Permissions"),
}

var definitionMap = buildDefinitionMap(definitions)

// supportGrants lists what the read-mostly support role may do.
var supportGrants = []string{
	Key("GET", "/api/admin/dashboard/stats"),
	Key("GET", "/api/admin/users"),
	Key("GET", "/api/admin/users/:id"),
	Key("POST", "/api/admin/users/:id/suspend"),
	Key("POST", "/api/admin/users/:id/unsuspend"),
	Key("POST", "/api/admin/users/:id/usage/recompute"),
	Key("GET", "/api/admin/usage"),
	Key("GET", "/api/admin/usage/:id"),
	Key("GET", "/api/admin/plans"),
	Key("GET", "/api/admin/plans/:id"),
	Key("GET", "/api/admin/permissions"),
}

var roleGrants = map[string]map[string]struct{}{
	models.RoleAdmin:   keySet(allKeys(definitions)),
	models.RoleSupport: keySet(supportGrants),
}

func buildDefinitionMap(defs []Definition) map[string]Definition {
	out := make(map[string]Definition, len(defs))
	for _, def := range defs {
		out[def.Key] = def
	}
	return out
}

func allKeys(defs []Definition) []string {
	out := make([]string, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Key)
	}
	return out
}

func keySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		out[key] = struct{}{}
	}
	return out
}
