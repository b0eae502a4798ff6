package rbac

import (
	"sort"
	"strings"
)

// Service resolves the permissions granted to a role.
type Service struct {
	grants map[Role]map[Permission]struct{}
}

// NewService builds Service from the static grant table.
func NewService() *Service {
	grants := make(map[Role]map[Permission]struct{}, len(rolePermissions))
	for role, perms := range rolePermissions {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[strings.ToLower(p)] = struct{}{}
		}
		grants[role] = set
	}
	return &Service{grants: grants}
}

// EffectivePermissions lists the sorted permissions of role.
func (s *Service) EffectivePermissions(role Role) []Permission {
	set := s.grants[role]
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Can reports whether role holds perm.
func (s *Service) Can(role Role, perm Permission) bool {
	_, ok := s.grants[role][strings.ToLower(perm)]
	return ok
}
