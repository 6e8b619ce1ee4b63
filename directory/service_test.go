package directory

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"gasopper/access"
)

func testPolicy(repo *fakeUserRepo) access.Policy {
	return access.NewPolicy(repo)
}

func seedUsers() map[int]User {
	mgr := 5
	return map[int]User{
		1:  {ID: 1, EmployeeID: "E001", Email: "admin@gasopper.test", RoleID: access.RoleAdmin, Active: true},
		5:  {ID: 5, EmployeeID: "E005", Email: "mgr@gasopper.test", RoleID: access.RoleManager, Active: true},
		10: {ID: 10, EmployeeID: "E010", Email: "sales@gasopper.test", RoleID: access.RoleSalesperson, ManagerID: &mgr, Active: true},
	}
}

func TestCreateUser_RoleMatrix(t *testing.T) {
	mgrID := 5
	otherMgr := 6

	cases := []struct {
		name    string
		actor   access.Actor
		params  CreateUserParams
		wantErr error
	}{
		{
			"admin creates manager",
			access.Actor{ID: 1, Role: access.RoleAdmin},
			CreateUserParams{EmployeeID: "E020", Email: "m2@gasopper.test", RoleID: access.RoleManager, Password: "long-enough"},
			nil,
		},
		{
			"manager creates salesperson on own team",
			access.Actor{ID: 5, Role: access.RoleManager},
			CreateUserParams{EmployeeID: "E021", Email: "s2@gasopper.test", RoleID: access.RoleSalesperson, ManagerID: &mgrID, Password: "long-enough"},
			nil,
		},
		{
			"manager cannot create a manager",
			access.Actor{ID: 5, Role: access.RoleManager},
			CreateUserParams{EmployeeID: "E022", Email: "m3@gasopper.test", RoleID: access.RoleManager, Password: "long-enough"},
			ErrForbidden,
		},
		{
			"manager cannot attach to another team",
			access.Actor{ID: 5, Role: access.RoleManager},
			CreateUserParams{EmployeeID: "E023", Email: "s3@gasopper.test", RoleID: access.RoleSalesperson, ManagerID: &otherMgr, Password: "long-enough"},
			ErrForbidden,
		},
		{
			"salesperson cannot create users",
			access.Actor{ID: 10, Role: access.RoleSalesperson},
			CreateUserParams{EmployeeID: "E024", Email: "s4@gasopper.test", RoleID: access.RoleSalesperson, Password: "long-enough"},
			ErrForbidden,
		},
		{
			"short password rejected",
			access.Actor{ID: 1, Role: access.RoleAdmin},
			CreateUserParams{EmployeeID: "E025", Email: "s5@gasopper.test", RoleID: access.RoleSalesperson, Password: "short"},
			ErrWeakPassword,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeUserRepo{users: seedUsers()}
			svc := NewService(repo, testPolicy(repo), &fakeRevoker{})

			user, err := svc.CreateUser(context.Background(), tc.actor, tc.params)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if user.RoleID != tc.params.RoleID {
				t.Errorf("expected role %v, got %v", tc.params.RoleID, user.RoleID)
			}
			if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(tc.params.Password)) != nil {
				t.Errorf("expected stored hash to verify the password")
			}
		})
	}
}

func TestGetUser_VisibilityMirrorsHierarchy(t *testing.T) {
	repo := &fakeUserRepo{users: seedUsers()}
	svc := NewService(repo, testPolicy(repo), &fakeRevoker{})

	// Manager 5 sees their report, the report does not see the manager.
	if _, err := svc.GetUser(context.Background(), access.Actor{ID: 5, Role: access.RoleManager}, 10); err != nil {
		t.Errorf("manager: expected nil error, got %v", err)
	}
	if _, err := svc.GetUser(context.Background(), access.Actor{ID: 10, Role: access.RoleSalesperson}, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("salesperson: expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUser_PrivilegedFieldsAdminOnly(t *testing.T) {
	repo := &fakeUserRepo{users: seedUsers()}
	svc := NewService(repo, testPolicy(repo), &fakeRevoker{})

	newRole := access.RoleManager
	inactive := false
	phone := "555-0123"

	// Self-update by the salesperson: contact data applies, the rest is
	// dropped without error.
	actor := access.Actor{ID: 10, Role: access.RoleSalesperson}
	saved, err := svc.UpdateUser(context.Background(), actor, 10, UpdateUserParams{
		PhoneNumber: &phone,
		RoleID:      &newRole,
		Active:      &inactive,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if saved.PhoneNumber != phone {
		t.Errorf("expected phone patched, got %q", saved.PhoneNumber)
	}
	if saved.RoleID != access.RoleSalesperson || !saved.Active {
		t.Errorf("expected privileged fields untouched, got role %v active %t", saved.RoleID, saved.Active)
	}

	admin := access.Actor{ID: 1, Role: access.RoleAdmin}
	saved, err = svc.UpdateUser(context.Background(), admin, 10, UpdateUserParams{RoleID: &newRole})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if saved.RoleID != access.RoleManager {
		t.Errorf("expected admin role change to apply, got %v", saved.RoleID)
	}
}

func TestDeactivateUser_AdminOnlyAndRevokesSession(t *testing.T) {
	repo := &fakeUserRepo{users: seedUsers()}
	revoker := &fakeRevoker{}
	svc := NewService(repo, testPolicy(repo), revoker)

	if err := svc.DeactivateUser(context.Background(), access.Actor{ID: 5, Role: access.RoleManager}, 10); !errors.Is(err, ErrForbidden) {
		t.Errorf("manager: expected ErrForbidden, got %v", err)
	}
	if err := svc.DeactivateUser(context.Background(), access.Actor{ID: 1, Role: access.RoleAdmin}, 1); !errors.Is(err, ErrForbidden) {
		t.Errorf("self: expected ErrForbidden, got %v", err)
	}

	if err := svc.DeactivateUser(context.Background(), access.Actor{ID: 1, Role: access.RoleAdmin}, 10); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if repo.users[10].Active {
		t.Errorf("expected user 10 inactive")
	}
	if len(revoker.revoked) != 1 || revoker.revoked[0] != 10 {
		t.Errorf("expected session revocation for user 10, got %v", revoker.revoked)
	}
}

func TestChangePassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("current-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	users := seedUsers()
	u := users[10]
	u.PasswordHash = string(hash)
	users[10] = u

	repo := &fakeUserRepo{users: users}
	svc := NewService(repo, testPolicy(repo), &fakeRevoker{})
	actor := access.Actor{ID: 10, Role: access.RoleSalesperson}

	if err := svc.ChangePassword(context.Background(), actor, 5, "current-pass", "next-password"); !errors.Is(err, ErrForbidden) {
		t.Errorf("other user: expected ErrForbidden, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), actor, 10, "wrong", "next-password"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("wrong current: expected ErrWrongPassword, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), actor, 10, "current-pass", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("short: expected ErrWeakPassword, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), actor, 10, "current-pass", "next-password"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(repo.users[10].PasswordHash), []byte("next-password")) != nil {
		t.Errorf("expected the new password to verify")
	}
}

type fakeUserRepo struct {
	users  map[int]User
	nextID int
}

func (f *fakeUserRepo) Create(_ context.Context, params CreateUserParams, passwordHash string) (User, error) {
	f.nextID++
	u := User{
		ID:           100 + f.nextID,
		EmployeeID:   params.EmployeeID,
		Email:        params.Email,
		PhoneNumber:  params.PhoneNumber,
		Address:      params.Address,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		RoleID:       params.RoleID,
		ManagerID:    params.ManagerID,
		PasswordHash: passwordHash,
		Active:       true,
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserRepo) Get(_ context.Context, id int) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (f *fakeUserRepo) List(_ context.Context, ownerIDs []int) ([]User, error) {
	out := []User{}
	for _, u := range f.users {
		if ownerIDs == nil {
			out = append(out, u)
			continue
		}
		for _, id := range ownerIDs {
			if u.ID == id {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeUserRepo) Save(_ context.Context, user User) (User, error) {
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) SetActive(_ context.Context, id int, active bool) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	f.users[id] = u
	return nil
}

func (f *fakeUserRepo) SetPasswordHash(_ context.Context, id int, hash string) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	f.users[id] = u
	return nil
}

func (f *fakeUserRepo) TouchLogin(_ context.Context, id int) error {
	if _, ok := f.users[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func (f *fakeUserRepo) ListTeam(_ context.Context, managerID int) ([]User, error) {
	out := []User{}
	for _, u := range f.users {
		if u.ManagerID != nil && *u.ManagerID == managerID && u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) ListRoles(_ context.Context) ([]RoleInfo, error) {
	return []RoleInfo{
		{ID: access.RoleAdmin, Name: "Admin"},
		{ID: access.RoleManager, Name: "Manager"},
		{ID: access.RoleSalesperson, Name: "Salesperson"},
	}, nil
}

func (f *fakeUserRepo) ManagerID(_ context.Context, userID int) (*int, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	return u.ManagerID, nil
}

func (f *fakeUserRepo) ActiveTeamIDs(_ context.Context, managerID int) ([]int, error) {
	ids := []int{}
	for _, u := range f.users {
		if u.ManagerID != nil && *u.ManagerID == managerID && u.Active {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

type fakeRevoker struct {
	revoked []int
}

func (f *fakeRevoker) Revoke(_ context.Context, userID int) error {
	f.revoked = append(f.revoked, userID)
	return nil
}
