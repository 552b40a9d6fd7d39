package services

import (
	"github.com/asakaida/authrus/internal/core/ports/driving"
)

// AuthorizationServiceImpl implements the driving AuthorizationService port
// over one Enforcer.
type AuthorizationServiceImpl struct {
	enforcer *Enforcer
}

// NewAuthorizationService creates a new AuthorizationServiceImpl.
func NewAuthorizationService(e *Enforcer) driving.AuthorizationService {
	return &AuthorizationServiceImpl{enforcer: e}
}

func (s *AuthorizationServiceImpl) Enforce(values ...string) (bool, error) {
	return s.enforcer.Enforce(values...)
}

func (s *AuthorizationServiceImpl) AddPolicy(key string, rule []string) (bool, error) {
	if key == "" {
		key = "p"
	}
	return s.enforcer.AddNamedPolicy(key, rule)
}

func (s *AuthorizationServiceImpl) RemovePolicy(key string, rule []string) (bool, error) {
	if key == "" {
		key = "p"
	}
	return s.enforcer.RemoveNamedPolicy(key, rule)
}

func (s *AuthorizationServiceImpl) GetPolicy(key string) [][]string {
	if key == "" {
		key = "p"
	}
	return s.enforcer.GetPolicy(key)
}

func (s *AuthorizationServiceImpl) AddRoleForUser(user, role string, domain ...string) (bool, error) {
	return s.enforcer.AddRoleLink(user, role, domain...)
}

func (s *AuthorizationServiceImpl) RemoveRoleForUser(user, role string, domain ...string) (bool, error) {
	return s.enforcer.RemoveRoleLink(user, role, domain...)
}

func (s *AuthorizationServiceImpl) GetRolesForUser(user string, domain ...string) []string {
	return s.enforcer.GetRolesForUser(user, domain...)
}

func (s *AuthorizationServiceImpl) GetUsersForRole(role string, domain ...string) []string {
	return s.enforcer.GetUsersForRole(role, domain...)
}

func (s *AuthorizationServiceImpl) ReloadPolicy() error {
	return s.enforcer.ReloadPolicy()
}
