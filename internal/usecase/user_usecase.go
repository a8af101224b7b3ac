package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// CreateUserRequest represents the request to create a user
type CreateUserRequest struct {
	Email    string          `json:"email"`
	Name     string          `json:"name"`
	Password string          `json:"password"`
	Role     domain.UserRole `json:"role"`
}

// LoginRequest carries user credentials
type LoginRequest struct {
	TenantID string `json:"tenantId,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries an issued bearer token
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        *domain.User `json:"user"`
}

// UserUseCase handles user management
type UserUseCase struct {
	userRepo     ports.UserRepository
	passwordSvc  ports.PasswordService
	tokenService ports.TokenService
	validator    *ValidationMiddleware
	audit        AuditRecorder
	publisher    ports.EventPublisher
	logger       logger.Logger
}

// NewUserUseCase creates a new user use case. tokenService may be nil when bearer tokens
// are disabled.
func NewUserUseCase(
	userRepo ports.UserRepository,
	passwordSvc ports.PasswordService,
	tokenService ports.TokenService,
	validator *ValidationMiddleware,
	audit AuditRecorder,
	publisher ports.EventPublisher,
	log logger.Logger,
) *UserUseCase {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &UserUseCase{
		userRepo:     userRepo,
		passwordSvc:  passwordSvc,
		tokenService: tokenService,
		validator:    validator,
		audit:        audit,
		publisher:    publisher,
		logger:       log,
	}
}

func (uc *UserUseCase) check(ctx context.Context, actor domain.Actor, action domain.WorkflowAction) error {
	return uc.validator.Check(ctx, ValidationContext{
		UserID:    actor.UserID,
		UserRole:  actor.Role,
		UserEmail: actor.Email,
		Action:    action,
	})
}

func (uc *UserUseCase) ensureWritable() error {
	if ro, ok := uc.audit.(readOnlyReporter); ok && ro.IsReadOnly() {
		return domain.ErrReadOnlyMode
	}
	return nil
}

func (uc *UserUseCase) publish(ctx context.Context, actor domain.Actor, eventType, userID string, data map[string]interface{}) {
	if uc.publisher == nil {
		return
	}
	event := ports.NewEvent(eventType, ports.AggregateUser, userID, data, 1).WithActor(actor.UserID, actor.TenantID)
	_ = uc.publisher.Publish(ctx, *event)
}

// recordOrUndo records in and runs undo when the append fails
func (uc *UserUseCase) recordOrUndo(ctx context.Context, in AuditInput, undo func(context.Context) error) error {
	if _, err := uc.audit.Record(ctx, in); err != nil {
		if undoErr := undo(context.WithoutCancel(ctx)); undoErr != nil {
			uc.logger.Error(ctx, "Failed to undo user change after audit failure", undoErr, map[string]interface{}{
				"user_id": in.SubjectID,
				"action":  in.Action,
			})
		}
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

func (uc *UserUseCase) unregister(id string) func(context.Context) error {
	return func(ctx context.Context) error { return uc.userRepo.Delete(ctx, id) }
}

func (uc *UserUseCase) revert(before domain.User) func(context.Context) error {
	return func(ctx context.Context) error { return uc.userRepo.Update(ctx, &before) }
}

// CreateUser registers a user in the actor's tenant
func (uc *UserUseCase) CreateUser(ctx context.Context, actor domain.Actor, req CreateUserRequest) (*domain.User, error) {
	if err := uc.check(ctx, actor, domain.ActionManageUsers); err != nil {
		return nil, err
	}
	if err := uc.ensureWritable(); err != nil {
		return nil, err
	}
	user, err := uc.register(ctx, actor.TenantID, req)
	if err != nil {
		return nil, err
	}

	in := AuditInputFor(actor, domain.AuditActionUserCreate, SubjectUser, user.ID)
	in.Metadata = map[string]string{"email": user.Email, "role": string(user.Role)}
	if err := uc.recordOrUndo(ctx, in, uc.unregister(user.ID)); err != nil {
		return nil, err
	}

	uc.publish(ctx, actor, ports.EventTypeUserCreated, user.ID, map[string]interface{}{
		"email": user.Email,
		"role":  user.Role,
	})
	return user, nil
}

// Bootstrap creates a user without an acting user, for operator tooling. The entry is
// attributed to the created user.
func (uc *UserUseCase) Bootstrap(ctx context.Context, tenantID string, req CreateUserRequest) (*domain.User, error) {
	if err := uc.ensureWritable(); err != nil {
		return nil, err
	}
	user, err := uc.register(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	self := domain.Actor{UserID: user.ID, Role: user.Role, Email: user.Email, TenantID: tenantID}
	in := AuditInputFor(self, domain.AuditActionUserCreate, SubjectUser, user.ID)
	in.Metadata = map[string]string{"email": user.Email, "role": string(user.Role), "bootstrap": "true"}
	if err := uc.recordOrUndo(ctx, in, uc.unregister(user.ID)); err != nil {
		return nil, err
	}
	return user, nil
}

func (uc *UserUseCase) register(ctx context.Context, tenantID string, req CreateUserRequest) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		return nil, domain.ErrInvalidEmail
	}
	if name := strings.TrimSpace(req.Name); len(name) < 2 || len(name) > 255 {
		return nil, newValidationError(domain.ErrValidationFailed, "Name must be between 2 and 255 characters")
	}
	if !req.Role.IsValid() {
		return nil, domain.ErrInvalidRole
	}
	if err := uc.passwordSvc.ValidatePasswordStrength(req.Password); err != nil {
		return nil, newValidationError(domain.ErrValidationFailed, err.Error())
	}

	// Check if email already exists
	_, err := uc.userRepo.FindByEmail(ctx, tenantID, email)
	switch {
	case err == nil:
		return nil, domain.ErrUserExists
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}

	hashed, err := uc.passwordSvc.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := domain.NewUser(tenantID, email, req.Name, hashed, req.Role)
	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user of the actor's tenant
func (uc *UserUseCase) GetUser(ctx context.Context, actor domain.Actor, userID string) (*domain.User, error) {
	if err := uc.check(ctx, actor, domain.ActionViewUsers); err != nil {
		return nil, err
	}
	return uc.loadUser(ctx, actor, userID)
}

func (uc *UserUseCase) loadUser(ctx context.Context, actor domain.Actor, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	user, err := uc.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.TenantID != actor.TenantID {
		return nil, fmt.Errorf("failed to get user: %w", domain.ErrUserNotFound)
	}
	return user, nil
}

// ListUsers retrieves users of the actor's tenant
func (uc *UserUseCase) ListUsers(ctx context.Context, actor domain.Actor, filter domain.UserFilter) ([]*domain.User, int, error) {
	if err := uc.check(ctx, actor, domain.ActionViewUsers); err != nil {
		return nil, 0, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	filter.TenantID = actor.TenantID

	users, err := uc.userRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	count, err := uc.userRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}
	return users, count, nil
}

// ChangeRole changes a user's role. Taking ADMIN away is additionally flagged as a
// permission revocation in the entry's metadata.
func (uc *UserUseCase) ChangeRole(ctx context.Context, actor domain.Actor, userID string, role domain.UserRole) (*domain.User, error) {
	if err := uc.check(ctx, actor, domain.ActionManageUsers); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, domain.ErrInvalidRole
	}
	if userID == actor.UserID {
		return nil, domain.ErrCannotChangeOwnRole
	}
	if err := uc.ensureWritable(); err != nil {
		return nil, err
	}
	user, err := uc.loadUser(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return nil, domain.ErrNothingToUpdate
	}

	before := *user
	previous := user.Role
	user.Role = role
	user.UpdatedAt = time.Now().UTC()
	if err := uc.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	in := AuditInputFor(actor, domain.AuditActionUserRoleChange, SubjectUser, user.ID)
	in.FieldChanges = []domain.FieldChange{{Field: "role", OldValue: previous, NewValue: role}}
	if previous == domain.UserRoleAdmin {
		in.Metadata = map[string]string{"permissionRevoke": "true"}
	}
	if err := uc.recordOrUndo(ctx, in, uc.revert(before)); err != nil {
		return nil, err
	}

	uc.publish(ctx, actor, ports.EventTypeUserRoleChanged, user.ID, map[string]interface{}{
		"old_role": previous,
		"new_role": role,
	})
	logger.LogSecurityEvent(ctx, uc.logger, "user_role_changed", "MEDIUM", map[string]interface{}{
		"user_id":  user.ID,
		"old_role": previous,
		"new_role": role,
		"actor_id": actor.UserID,
	})
	return user, nil
}

// DeleteUser deactivates a user; the record is kept for audit attribution
func (uc *UserUseCase) DeleteUser(ctx context.Context, actor domain.Actor, userID string) error {
	if err := uc.check(ctx, actor, domain.ActionManageUsers); err != nil {
		return err
	}
	if userID == actor.UserID {
		return newValidationError(domain.ErrValidationFailed, "Users cannot delete themselves")
	}
	if err := uc.ensureWritable(); err != nil {
		return err
	}
	user, err := uc.loadUser(ctx, actor, userID)
	if err != nil {
		return err
	}
	if !user.Active {
		return domain.ErrUserNotFound
	}

	before := *user
	user.Active = false
	user.UpdatedAt = time.Now().UTC()
	if err := uc.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	in := AuditInputFor(actor, domain.AuditActionUserDelete, SubjectUser, user.ID)
	in.Metadata = map[string]string{"email": user.Email, "role": string(user.Role)}
	if err := uc.recordOrUndo(ctx, in, uc.revert(before)); err != nil {
		return err
	}

	uc.publish(ctx, actor, ports.EventTypeUserDeleted, user.ID, nil)
	return nil
}

// Login verifies credentials and issues a bearer token
func (uc *UserUseCase) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if uc.tokenService == nil {
		return nil, domain.ErrUnauthenticated
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := uc.userRepo.FindByEmail(ctx, req.TenantID, email)
	if err != nil || !user.Active {
		logger.LogAuthEvent(ctx, uc.logger, "login_failed", "", "", false, map[string]interface{}{"email": email})
		return nil, domain.ErrInvalidCredentials
	}
	if err := uc.passwordSvc.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		logger.LogAuthEvent(ctx, uc.logger, "login_failed", user.ID, "", false, nil)
		return nil, domain.ErrInvalidCredentials
	}

	token, expiresAt, err := uc.tokenService.GenerateToken(domain.Actor{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		TenantID: user.TenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	logger.LogAuthEvent(ctx, uc.logger, "login", user.ID, "", true, nil)
	return &LoginResponse{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}
