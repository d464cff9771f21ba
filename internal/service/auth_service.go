package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/models"
	"github.com/noah-isme/autoeval-api/internal/repository"
)

// AuthService registers accounts and exchanges credentials for signed tokens.
type AuthService interface {
	Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error)
	Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error)
	EnsureAdmin(ctx context.Context, name, email, password string) error
}

type authService struct {
	users     repository.UserRepository
	validator *validator.Validate
	secret    []byte
	expiry    time.Duration
	cost      int
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService signing HS256 tokens with secret.
func NewAuthService(users repository.UserRepository, validate *validator.Validate, secret string, expiry time.Duration, logger zerolog.Logger) AuthService {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &authService{
		users:     users,
		validator: validate,
		secret:    []byte(secret),
		expiry:    expiry,
		cost:      bcrypt.DefaultCost,
		logger:    logger.With().Str("component", "auth_service").Logger(),
		now:       time.Now,
	}
}

func (s *authService) Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	role := payload.Role
	if role == "" {
		role = models.RoleStudent
	}

	user, err := s.create(ctx, payload.Name, payload.Email, payload.Password, role)
	if err != nil {
		return dto.AuthResponse{}, err
	}

	s.logger.Info().Uint("user_id", user.ID).Str("role", user.Role).Msg("account registered")

	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, payload.Email)
	if err != nil {
		if repository.IsNotFound(err) {
			return dto.AuthResponse{}, ErrInvalidCredentials
		}
		return dto.AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)); err != nil {
		return dto.AuthResponse{}, ErrInvalidCredentials
	}

	return s.issue(user)
}

// EnsureAdmin creates the administrator account when it does not exist yet.
func (s *authService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !repository.IsNotFound(err) {
		return err
	}

	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	user, err := s.create(ctx, name, email, password, models.RoleAdmin)
	if err != nil && !errors.Is(err, ErrEmailTaken) {
		return err
	}
	if err == nil {
		s.logger.Info().Uint("user_id", user.ID).Msg("administrator account created")
	}
	return nil
}

func (s *authService) create(ctx context.Context, name, email, password, role string) (models.User, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if _, err := s.users.GetByEmail(ctx, normalizedEmail); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !repository.IsNotFound(err) {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Name:         strings.TrimSpace(name),
		Email:        normalizedEmail,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		if repository.IsUniqueViolation(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}

	return user, nil
}

func (s *authService) issue(user models.User) (dto.AuthResponse, error) {
	token, expiresAt, err := IssueToken(s.secret, user, s.expiry, s.now())
	if err != nil {
		return dto.AuthResponse{}, err
	}

	return dto.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      dto.NewUserResponse(user),
	}, nil
}

// IssueToken signs an HS256 token carrying the user id as subject and the role claim.
func IssueToken(secret []byte, user models.User, expiry time.Duration, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(expiry).UTC()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(user.ID), 10),
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}
