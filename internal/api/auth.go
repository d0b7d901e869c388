package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"slices"
)

// Role represents an authorization role. Admins may change scenes and
// puzzles on disk; operators may read state and drive the executor.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

type credentials struct {
	user, pass string
}

func (c credentials) set() bool { return c.user != "" && c.pass != "" }

func (c credentials) match(user, pass string) bool {
	return c.set() && secureCompare(user, c.user) && secureCompare(pass, c.pass)
}

type authConfig struct {
	admin    credentials
	operator credentials
}

var auth *authConfig

// InitAuth loads basic auth credentials through resolve, normally
// config.ResolveSecret so the *_FILE convention applies. Authentication
// stays disabled unless both admin values are set.
func InitAuth(resolve func(name string) (string, error)) error {
	var vals [4]string
	for i, name := range []string{
		"SENTIENT_ADMIN_USER", "SENTIENT_ADMIN_PASS",
		"SENTIENT_OPERATOR_USER", "SENTIENT_OPERATOR_PASS",
	} {
		v, err := resolve(name)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		vals[i] = v
	}
	auth = &authConfig{
		admin:    credentials{user: vals[0], pass: vals[1]},
		operator: credentials{user: vals[2], pass: vals[3]},
	}
	return nil
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.admin.set()
}

// authenticate returns the caller's role, or "" for bad credentials.
func authenticate(r *http.Request) Role {
	if !IsAuthEnabled() {
		return RoleAdmin
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	switch {
	case auth.admin.match(user, pass):
		return RoleAdmin
	case auth.operator.match(user, pass):
		return RoleOperator
	}
	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Sentient Timeline"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}
		if !slices.Contains(allowedRoles, role) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		handler(w, r)
	}
}

// RequireAnyRole wraps a handler requiring admin OR operator role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
