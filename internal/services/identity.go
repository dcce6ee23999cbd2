package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskhub/backend/internal/config"
	"github.com/taskhub/backend/internal/models"
	"github.com/taskhub/backend/internal/utils"
	"github.com/taskhub/backend/pkg/logger"
	"github.com/taskhub/backend/pkg/response"
	"gorm.io/gorm"
)

// IdentityProvider resolves user ids for the project and task services.
type IdentityProvider interface {
	UserExists(ctx context.Context, id uint) (bool, error)
	// FindUser returns nil without error when the user does not exist.
	FindUser(ctx context.Context, id uint) (*models.User, error)
	// FindUsers returns the users that exist among ids, keyed by id.
	FindUsers(ctx context.Context, ids []uint) (map[uint]models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type IdentityService struct {
	db          *gorm.DB
	ldapService *LDAPService
	jwtConfig   *config.JWTConfig
}

func NewIdentityService(db *gorm.DB, jwtCfg *config.JWTConfig, ldapCfg *config.LDAPConfig) *IdentityService {
	return &IdentityService{
		db:          db,
		ldapService: NewLDAPService(ldapCfg),
		jwtConfig:   jwtCfg,
	}
}

type RegisterRequest struct {
	Name                 string `json:"name" binding:"required,max=255"`
	Email                string `json:"email" binding:"required,email"`
	Password             string `json:"password" binding:"required,min=6,max=72"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required,eqfield=Password"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type" binding:"omitempty,oneof=local ldap"`
}

type LoginResult struct {
	Token    string       `json:"token"`
	ExpireAt time.Time    `json:"expire_at"`
	User     *models.User `json:"user"`
}

// PublicUser is the shape other users see in member and assignee lists.
type PublicUser struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *IdentityService) UserExists(ctx context.Context, id uint) (bool, error) {
	if id == 0 {
		return false, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count user %d: %w", id, err)
	}
	return count > 0, nil
}

func (s *IdentityService) FindUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

func (s *IdentityService) FindUsers(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	found := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		found[u.ID] = u
	}
	return found, nil
}

func (s *IdentityService) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user by email: %w", err)
	}
	return &user, nil
}

// Register creates a local account.
func (s *IdentityService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)

	existing, err := s.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, response.NewConflict("email has already been taken")
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, response.NewInternal("failed to hash password", err)
	}

	user := models.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: hashed,
		AuthType: models.AuthTypeLocal,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.Info().Uint("user_id", user.ID).Msg("user registered")
	return &user, nil
}

// Login authenticates the credentials and issues an access token.
func (s *IdentityService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	var (
		user *models.User
		err  error
	)

	switch req.AuthType {
	case "", models.AuthTypeLocal:
		user, err = s.localAuth(ctx, req.Email, req.Password)
	case models.AuthTypeLDAP:
		user, err = s.ldapAuth(ctx, req.Email, req.Password)
	default:
		return nil, response.NewValidation("invalid auth type")
	}
	if err != nil {
		return nil, err
	}

	expireHours := s.jwtConfig.ExpireHour
	token, err := utils.GenerateToken(user.ID, user.Email, user.Name, user.TokenVersion, expireHours)
	if err != nil {
		return nil, response.NewInternal("failed to generate token", err)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(user).Update("last_login", now).Error; err != nil {
		logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to record last login")
	}

	return &LoginResult{
		Token:    token,
		ExpireAt: now.Add(time.Duration(expireHours) * time.Hour),
		User:     user,
	}, nil
}

// Profile returns the account of the authenticated user.
func (s *IdentityService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, response.NewNotFound("user not found")
	}
	return user, nil
}

// Logout revokes every token issued to the user so far.
func (s *IdentityService) Logout(ctx context.Context, userID uint) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("token_version", gorm.Expr("token_version + ?", 1))
	if result.Error != nil {
		return response.NewInternal("failed to revoke tokens", result.Error)
	}
	if result.RowsAffected == 0 {
		return response.NewNotFound("user not found")
	}
	logger.Info().Uint("user_id", userID).Msg("user logged out")
	return nil
}

// ValidateToken accepts a verified token only while its user exists and no
// logout happened after it was issued.
func (s *IdentityService) ValidateToken(ctx context.Context, claims *utils.Claims) error {
	var user models.User
	err := s.db.WithContext(ctx).Select("id", "token_version").First(&user, claims.UserID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NewUnauthorized("invalid or expired token")
		}
		return response.NewInternal("failed to validate token", err)
	}
	if user.TokenVersion != claims.Version {
		return response.NewUnauthorized("token has been revoked")
	}
	return nil
}

func (s *IdentityService) localAuth(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND auth_type = ?", normalizeEmail(email), models.AuthTypeLocal).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !utils.CheckPassword(password, user.Password) {
		return nil, response.NewUnauthorized("invalid email or password")
	}
	return &user, nil
}

// ldapAuth verifies the credentials against the directory and provisions a
// local user record on first login.
func (s *IdentityService) ldapAuth(ctx context.Context, login, password string) (*models.User, error) {
	if !s.ldapService.IsEnabled() {
		return nil, response.NewValidation("LDAP authentication is not enabled")
	}

	ldapUser, err := s.ldapService.Authenticate(login, password)
	if err != nil {
		logger.Warn().Err(err).Str("login", login).Msg("ldap authentication failed")
		return nil, response.NewUnauthorized("invalid email or password")
	}

	email := normalizeEmail(ldapUser.Email)
	if email == "" {
		email = normalizeEmail(login)
	}
	name := ldapUser.Name
	if name == "" {
		name = ldapUser.Username
	}

	var user models.User
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Name:     name,
			Email:    email,
			AuthType: models.AuthTypeLDAP,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("provision ldap user: %w", err)
		}
		logger.Info().Uint("user_id", user.ID).Msg("ldap user provisioned")
	case err != nil:
		return nil, fmt.Errorf("load user: %w", err)
	case user.AuthType != models.AuthTypeLDAP:
		return nil, response.NewConflict("a local account already uses this email")
	default:
		if name != "" && name != user.Name {
			user.Name = name
			if err := s.db.WithContext(ctx).Model(&user).Update("name", name).Error; err != nil {
				logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to sync ldap name")
			}
		}
	}

	return &user, nil
}

// firstMissingUser returns the first id in ids that does not resolve.
func firstMissingUser(ctx context.Context, users IdentityProvider, ids []uint) (uint, bool, error) {
	found, err := users.FindUsers(ctx, ids)
	if err != nil {
		return 0, false, err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
