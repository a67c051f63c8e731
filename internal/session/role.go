package session

import "strings"

// Role is a user category as the backend names it in the "perfil" field.
type Role string

const (
	RoleAdmin     Role = "admin"
	RolePassenger Role = "passageiro"
	RoleDriver    Role = "motorista"
	RoleConductor Role = "cobrador"
)

// roleAliases maps alternative spellings seen in older backend builds.
var roleAliases = map[string]Role{
	"admin":         RoleAdmin,
	"administrador": RoleAdmin,
	"passageiro":    RolePassenger,
	"passenger":     RolePassenger,
	"motorista":     RoleDriver,
	"driver":        RoleDriver,
	"cobrador":      RoleConductor,
	"conductor":     RoleConductor,
}

// ParseRole resolves a backend role name. ok is false for anything unknown.
func ParseRole(s string) (Role, bool) {
	r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	return r, ok
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePassenger, RoleDriver, RoleConductor:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RolePassenger, RoleDriver, RoleConductor}
}
