package access

import "context"

// Role identifies one of the three fixed pipeline roles. Values match the
// seeded rows in the roles table and rank Admin > Manager > Salesperson.
type Role int

const (
	RoleAdmin       Role = 1
	RoleManager     Role = 2
	RoleSalesperson Role = 3
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleSalesperson:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleManager:
		return "Manager"
	case RoleSalesperson:
		return "Salesperson"
	default:
		return "Unknown"
	}
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   int
	Role Role
}

// Directory provides the hierarchy lookups the policy needs. Implemented by
// the identity directory repository.
type Directory interface {
	// ManagerID returns the manager of the given user, or nil when the user
	// has none or does not exist.
	ManagerID(ctx context.Context, userID int) (*int, error)
	// ActiveTeamIDs returns the ids of active users managed by managerID.
	ActiveTeamIDs(ctx context.Context, managerID int) ([]int, error)
}

// Policy answers who may see or touch resources owned by whom. It is a pure
// decision table over (actor role, resource owner, hierarchy); lookups that
// fail resolve to "no access" rather than surfacing an error, so callers can
// translate denial into not-found uniformly.
type Policy struct {
	dir Directory
}

func NewPolicy(dir Directory) Policy {
	return Policy{dir: dir}
}

// CanAccess reports whether the actor may view or mutate a resource assigned
// to ownerID. Manager hierarchy is resolved live against the directory so the
// answer reflects current team membership.
func (p Policy) CanAccess(ctx context.Context, actor Actor, ownerID int) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleSalesperson:
		return ownerID == actor.ID
	case RoleManager:
		if ownerID == actor.ID {
			return true
		}
		managerID, err := p.dir.ManagerID(ctx, ownerID)
		if err != nil || managerID == nil {
			return false
		}
		return *managerID == actor.ID
	default:
		return false
	}
}

// VisibleOwnerSet returns the owner ids whose resources the actor may list.
// For Admin the set is unrestricted and callers should skip filtering
// entirely. A manager whose team lookup fails still sees their own resources.
func (p Policy) VisibleOwnerSet(ctx context.Context, actor Actor) (ownerIDs []int, unrestricted bool) {
	switch actor.Role {
	case RoleAdmin:
		return nil, true
	case RoleManager:
		ids := []int{actor.ID}
		team, err := p.dir.ActiveTeamIDs(ctx, actor.ID)
		if err == nil {
			ids = append(ids, team...)
		}
		return ids, false
	default:
		return []int{actor.ID}, false
	}
}

// CanAssign reports whether the actor may set a resource's assignee to
// assigneeID. Everyone may assign to themselves; Admin may assign to anyone;
// a Manager may assign to current team members (checked live).
func (p Policy) CanAssign(ctx context.Context, actor Actor, assigneeID int) bool {
	if assigneeID == actor.ID {
		return true
	}
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		managerID, err := p.dir.ManagerID(ctx, assigneeID)
		if err != nil || managerID == nil {
			return false
		}
		return *managerID == actor.ID
	default:
		return false
	}
}
