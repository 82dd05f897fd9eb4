package domain

import dErrors "unykorn/pkg/domain-errors"

// Role names a privilege held within one component's access list.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleMinter      Role = "minter"
	RoleBurner      Role = "burner"
	RoleMerchant    Role = "merchant"
	RoleRegistrar   Role = "registrar"
	RoleExecutor    Role = "executor"
	RoleGovernor    Role = "governor"
	RoleRecorder    Role = "recorder"
	RoleDistributor Role = "distributor"
	RoleReporter    Role = "reporter"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:       {},
	RoleMinter:      {},
	RoleBurner:      {},
	RoleMerchant:    {},
	RoleRegistrar:   {},
	RoleExecutor:    {},
	RoleGovernor:    {},
	RoleRecorder:    {},
	RoleDistributor: {},
	RoleReporter:    {},
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := knownRoles[r]; !ok {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }
