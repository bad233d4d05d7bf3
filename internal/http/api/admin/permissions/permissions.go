// Package permissions lists the admin API routes an admin may be allowed to call.
package permissions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"
)

// Definition describes one permission-gated admin route.
type Definition struct {
	Key    string // "METHOD /full/path".
	Method string
	Path   string
	Label  string
	Module string
}

// adminPrefix is the mount point of the admin API.
const adminPrefix = "/v0/admin"

var definitions = []Definition{
	def("GET", "/permissions", "List permissions", "Admins"),
	def("GET", "/admins", "List admins", "Admins"),
	def("POST", "/admins", "Create admin", "Admins"),
	def("GET", "/admins/:id", "View admin", "Admins"),
	def("PUT", "/admins/:id", "Update admin", "Admins"),
	def("DELETE", "/admins/:id", "Delete admin", "Admins"),

	def("GET", "/cards", "List cards", "Cards"),
	def("POST", "/cards", "Create card", "Cards"),
	def("GET", "/cards/:id", "View card", "Cards"),
	def("PUT", "/cards/:id", "Update card", "Cards"),
	def("DELETE", "/cards/:id", "Delete card", "Cards"),

	def("GET", "/promo-codes", "List promo codes", "Promo codes"),
	def("POST", "/promo-codes", "Create promo code", "Promo codes"),
	def("POST", "/promo-codes/generate", "Generate promo codes", "Promo codes"),
	def("GET", "/promo-codes/:id", "View promo code", "Promo codes"),
	def("PUT", "/promo-codes/:id", "Update promo code", "Promo codes"),
	def("DELETE", "/promo-codes/:id", "Delete promo code", "Promo codes"),

	def("GET", "/packages", "List packages", "Packages"),
	def("POST", "/packages", "Create package", "Packages"),
	def("GET", "/packages/:id", "View package", "Packages"),
	def("PUT", "/packages/:id", "Update package", "Packages"),
	def("DELETE", "/packages/:id", "Delete package", "Packages"),

	def("GET", "/users", "List users", "Users"),
	def("GET", "/users/:id/access", "View user access", "Users"),
	def("POST", "/users/:id/access", "Grant card access", "Users"),
	def("DELETE", "/users/:id/access", "Revoke all card access", "Users"),
	def("DELETE", "/users/:id/access/:card_id", "Revoke card access", "Users"),

	def("GET", "/purchases", "List purchases", "Purchases"),

	def("GET", "/settings", "View settings", "Settings"),
	def("PUT", "/settings/:key", "Update setting", "Settings"),
}

func def(method, path, label, module string) Definition {
	full := adminPrefix + path
	return Definition{Key: Key(method, full), Method: method, Path: full, Label: label, Module: module}
}

// Key builds the permission key for a method and a gin route path.
func Key(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(path)
}

// Definitions returns a copy of all permission definitions.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap indexes definitions by key.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, d := range definitions {
		out[d.Key] = d
	}
	return out
}

// NormalizePermissions trims, dedupes and sorts permission keys.
func NormalizePermissions(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		parts := strings.Fields(key)
		if len(parts) != 2 {
			continue
		}
		normalized := Key(parts[0], parts[1])
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	return out
}

// ValidatePermissions rejects keys that name no known route.
func ValidatePermissions(keys []string) error {
	known := DefinitionMap()
	for _, key := range keys {
		if _, ok := known[key]; !ok {
			return fmt.Errorf("permissions: unknown permission %q", key)
		}
	}
	return nil
}

// MarshalPermissions encodes keys as a JSON array.
func MarshalPermissions(keys []string) ([]byte, error) {
	if keys == nil {
		keys = []string{}
	}
	return json.Marshal(keys)
}

// ParsePermissions decodes a stored JSON array, returning an empty list on bad data.
func ParsePermissions(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return []string{}
	}
	return NormalizePermissions(keys)
}

// HasPermission reports whether key is in the granted list.
func HasPermission(granted []string, key string) bool {
	for _, g := range granted {
		if g == key {
			return true
		}
	}
	return false
}
