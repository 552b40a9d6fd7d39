package driving

// AuthorizationService defines the operations the transport layer exposes
// over one enforcer.
type AuthorizationService interface {
	Enforce(values ...string) (bool, error)
	AddPolicy(key string, rule []string) (bool, error)
	RemovePolicy(key string, rule []string) (bool, error)
	GetPolicy(key string) [][]string
	AddRoleForUser(user, role string, domain ...string) (bool, error)
	RemoveRoleForUser(user, role string, domain ...string) (bool, error)
	GetRolesForUser(user string, domain ...string) []string
	GetUsersForRole(role string, domain ...string) []string
	ReloadPolicy() error
}
