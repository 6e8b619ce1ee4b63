package access

import (
	"context"
	"errors"
	"sort"
	"testing"
)

type fakeDirectory struct {
	managers map[int]int   // userID -> managerID
	teams    map[int][]int // managerID -> active team member ids
	fail     bool
}

func (f *fakeDirectory) ManagerID(ctx context.Context, userID int) (*int, error) {
	if f.fail {
		return nil, errors.New("directory unavailable")
	}
	m, ok := f.managers[userID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeDirectory) ActiveTeamIDs(ctx context.Context, managerID int) ([]int, error) {
	if f.fail {
		return nil, errors.New("directory unavailable")
	}
	return f.teams[managerID], nil
}

func newTestDirectory() *fakeDirectory {
	// Manager 5 leads users 10 and 11; user 20 reports to manager 6.
	return &fakeDirectory{
		managers: map[int]int{10: 5, 11: 5, 20: 6},
		teams:    map[int][]int{5: {10, 11}, 6: {20}},
	}
}

func TestCanAccess(t *testing.T) {
	policy := NewPolicy(newTestDirectory())
	ctx := context.Background()

	cases := []struct {
		name    string
		actor   Actor
		ownerID int
		want    bool
	}{
		{"admin any owner", Actor{ID: 1, Role: RoleAdmin}, 20, true},
		{"salesperson own", Actor{ID: 10, Role: RoleSalesperson}, 10, true},
		{"salesperson other", Actor{ID: 10, Role: RoleSalesperson}, 11, false},
		{"manager own", Actor{ID: 5, Role: RoleManager}, 5, true},
		{"manager team member", Actor{ID: 5, Role: RoleManager}, 11, true},
		{"manager unrelated user", Actor{ID: 5, Role: RoleManager}, 20, false},
		{"unknown role", Actor{ID: 3, Role: Role(9)}, 3, false},
	}

	for _, tc := range cases {
		if got := policy.CanAccess(ctx, tc.actor, tc.ownerID); got != tc.want {
			t.Errorf("%s: CanAccess = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanAccessDirectoryFailureDenies(t *testing.T) {
	dir := newTestDirectory()
	dir.fail = true
	policy := NewPolicy(dir)

	actor := Actor{ID: 5, Role: RoleManager}
	if policy.CanAccess(context.Background(), actor, 10) {
		t.Error("expected denial when hierarchy lookup fails")
	}
}

func TestVisibleOwnerSet(t *testing.T) {
	policy := NewPolicy(newTestDirectory())
	ctx := context.Background()

	ids, unrestricted := policy.VisibleOwnerSet(ctx, Actor{ID: 1, Role: RoleAdmin})
	if !unrestricted || ids != nil {
		t.Fatalf("admin: expected unrestricted nil set, got %v (unrestricted=%v)", ids, unrestricted)
	}

	ids, unrestricted = policy.VisibleOwnerSet(ctx, Actor{ID: 5, Role: RoleManager})
	if unrestricted {
		t.Fatal("manager: expected restricted set")
	}
	sort.Ints(ids)
	want := []int{5, 10, 11}
	if len(ids) != len(want) {
		t.Fatalf("manager: got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("manager: got %v, want %v", ids, want)
		}
	}
	for _, id := range ids {
		if id == 20 {
			t.Fatal("manager: set must not contain users outside the team")
		}
	}

	ids, unrestricted = policy.VisibleOwnerSet(ctx, Actor{ID: 10, Role: RoleSalesperson})
	if unrestricted || len(ids) != 1 || ids[0] != 10 {
		t.Fatalf("salesperson: got %v (unrestricted=%v), want [10]", ids, unrestricted)
	}
}

func TestVisibleOwnerSetManagerFallsBackToSelf(t *testing.T) {
	dir := newTestDirectory()
	dir.fail = true
	policy := NewPolicy(dir)

	ids, unrestricted := policy.VisibleOwnerSet(context.Background(), Actor{ID: 5, Role: RoleManager})
	if unrestricted || len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("expected manager to keep own visibility on lookup failure, got %v", ids)
	}
}

func TestCanAssign(t *testing.T) {
	policy := NewPolicy(newTestDirectory())
	ctx := context.Background()

	cases := []struct {
		name     string
		actor    Actor
		assignee int
		want     bool
	}{
		{"self always allowed", Actor{ID: 10, Role: RoleSalesperson}, 10, true},
		{"salesperson to other", Actor{ID: 10, Role: RoleSalesperson}, 11, false},
		{"admin to anyone", Actor{ID: 1, Role: RoleAdmin}, 20, true},
		{"manager to team member", Actor{ID: 5, Role: RoleManager}, 10, true},
		{"manager to outsider", Actor{ID: 5, Role: RoleManager}, 20, false},
		{"manager to unmanaged user", Actor{ID: 5, Role: RoleManager}, 99, false},
	}

	for _, tc := range cases {
		if got := policy.CanAssign(ctx, tc.actor, tc.assignee); got != tc.want {
			t.Errorf("%s: CanAssign = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRoleString(t *testing.T) {
	if RoleAdmin.String() != "Admin" || RoleManager.String() != "Manager" || RoleSalesperson.String() != "Salesperson" {
		t.Fatal("role names must match seeded reference data")
	}
	if Role(0).Valid() {
		t.Fatal("zero role must be invalid")
	}
}
