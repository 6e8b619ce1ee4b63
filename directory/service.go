package directory

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"gasopper/access"
)

var (
	// ErrForbidden signals the actor's role does not permit the directory
	// mutation at all (user creation and deactivation rules).
	ErrForbidden = errors.New("directory: operation forbidden")
	// ErrWeakPassword signals the password fails the minimum length check.
	ErrWeakPassword = errors.New("directory: password must be at least 8 characters")
	// ErrWrongPassword signals the current password did not verify.
	ErrWrongPassword = errors.New("directory: current password does not match")
)

// SessionRevoker invalidates any standing session for a user. Deactivation
// must revoke so a deactivated user's token stops working immediately.
type SessionRevoker interface {
	Revoke(ctx context.Context, userID int) error
}

// Service enforces the directory's role rules on top of the repository.
type Service struct {
	repo     Repository
	policy   access.Policy
	sessions SessionRevoker
}

func NewService(repo Repository, policy access.Policy, sessions SessionRevoker) *Service {
	return &Service{repo: repo, policy: policy, sessions: sessions}
}

// CreateUser adds a directory entry. Admin may create any role; a Manager may
// only create Salespeople and may only attach them to their own team;
// Salespeople may not create users.
func (s *Service) CreateUser(ctx context.Context, actor access.Actor, params CreateUserParams) (*User, error) {
	switch actor.Role {
	case access.RoleAdmin:
	case access.RoleManager:
		if params.RoleID != access.RoleSalesperson {
			return nil, ErrForbidden
		}
		if params.ManagerID != nil && *params.ManagerID != actor.ID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	if !params.RoleID.Valid() {
		return nil, fmt.Errorf("directory: invalid role %d", params.RoleID)
	}
	if params.Email == "" || params.EmployeeID == "" {
		return nil, fmt.Errorf("directory: email and employee id are required")
	}
	if len(params.Password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("directory: hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, params, string(hash))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser returns a directory entry the actor is allowed to see. Absence and
// denial both surface as ErrNotFound.
func (s *Service) GetUser(ctx context.Context, actor access.Actor, userID int) (*User, error) {
	if !s.policy.CanAccess(ctx, actor, userID) {
		return nil, ErrNotFound
	}
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns the directory entries within the actor's visibility.
func (s *Service) ListUsers(ctx context.Context, actor access.Actor) ([]User, error) {
	ownerIDs, unrestricted := s.policy.VisibleOwnerSet(ctx, actor)
	if unrestricted {
		ownerIDs = nil
	}
	return s.repo.List(ctx, ownerIDs)
}

// UpdateUser applies a field-level patch. Role, manager link, and active flag
// changes are honored only when the actor is Admin; for other actors those
// fields of the patch are ignored, matching the partial-update discipline of
// the lifecycles.
func (s *Service) UpdateUser(ctx context.Context, actor access.Actor, userID int, params UpdateUserParams) (*User, error) {
	if !s.policy.CanAccess(ctx, actor, userID) {
		return nil, ErrNotFound
	}

	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if params.EmployeeID != nil && *params.EmployeeID != "" {
		user.EmployeeID = *params.EmployeeID
	}
	if params.Email != nil && *params.Email != "" {
		user.Email = *params.Email
	}
	if params.PhoneNumber != nil && *params.PhoneNumber != "" {
		user.PhoneNumber = *params.PhoneNumber
	}
	if params.Address != nil && *params.Address != "" {
		user.Address = *params.Address
	}
	if params.FirstName != nil && *params.FirstName != "" {
		user.FirstName = *params.FirstName
	}
	if params.LastName != nil && *params.LastName != "" {
		user.LastName = *params.LastName
	}

	if actor.Role == access.RoleAdmin {
		if params.RoleID != nil {
			if !params.RoleID.Valid() {
				return nil, fmt.Errorf("directory: invalid role %d", *params.RoleID)
			}
			user.RoleID = *params.RoleID
		}
		if params.ManagerID != nil {
			user.ManagerID = params.ManagerID
		}
		if params.Active != nil {
			user.Active = *params.Active
		}
	}

	saved, err := s.repo.Save(ctx, user)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// DeactivateUser marks a user inactive and revokes their session. Admin only;
// self-deactivation is rejected. Users are never hard-deleted.
func (s *Service) DeactivateUser(ctx context.Context, actor access.Actor, userID int) error {
	if actor.Role != access.RoleAdmin {
		return ErrForbidden
	}
	if userID == actor.ID {
		return ErrForbidden
	}

	if err := s.repo.SetActive(ctx, userID, false); err != nil {
		return err
	}
	if s.sessions != nil {
		if err := s.sessions.Revoke(ctx, userID); err != nil {
			return fmt.Errorf("directory: revoke session: %w", err)
		}
	}
	return nil
}

// Team lists the active direct reports of a manager.
func (s *Service) Team(ctx context.Context, managerID int) ([]User, error) {
	return s.repo.ListTeam(ctx, managerID)
}

// ChangePassword lets a user rotate their own password after verifying the
// current one.
func (s *Service) ChangePassword(ctx context.Context, actor access.Actor, userID int, currentPassword, newPassword string) error {
	if userID != actor.ID {
		return ErrForbidden
	}
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("directory: hash password: %w", err)
	}
	return s.repo.SetPasswordHash(ctx, userID, string(hash))
}

// Roles lists the role reference rows.
func (s *Service) Roles(ctx context.Context) ([]RoleInfo, error) {
	return s.repo.ListRoles(ctx)
}
