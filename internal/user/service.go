package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tablemate/tablemate/pkg/bcryptutil"
)

// Service handles registration, login and account settings.
type Service struct {
	store     Store
	jwtSecret []byte
	jwtExpiry time.Duration
	now       func() time.Time
}

func NewService(store Store, jwtSecret string, jwtExpiry time.Duration) *Service {
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		jwtExpiry: jwtExpiry,
		now:       time.Now,
	}
}

type RegisterParams struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (p RegisterParams) validate() error {
	if !strings.Contains(p.Email, "@") {
		return errors.New("invalid email")
	}
	if len(p.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return errors.New("display name is required")
	}
	return nil
}

func (s *Service) Register(ctx context.Context, p RegisterParams) (*User, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	hash, err := bcryptutil.GenerateHash(p.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(p.Email)),
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(p.DisplayName),
		PushEnabled:  true,
		EmailEnabled: true,
		CreatedAt:    s.now().UTC(),
	}
	u.UpdatedAt = u.CreatedAt

	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and returns the user with a signed token.
// Unknown email and wrong password collapse into one error so the
// response never reveals which field was wrong.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	u, err := s.store.ByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, "", ErrBadCredential
	}
	if err != nil {
		return nil, "", err
	}

	if !bcryptutil.CompareHash(password, u.PasswordHash) {
		return nil, "", ErrBadCredential
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *Service) issueToken(u *User) (string, error) {
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"iat":   now.Unix(),
		"exp":   now.Add(s.jwtExpiry).Unix(),
		"admin": u.IsAdmin,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Claims is the verified identity extracted from a bearer token.
type Claims struct {
	UserID  string
	IsAdmin bool
}

// VerifyToken parses and validates a bearer token.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("invalid token subject")
	}
	admin, _ := claims["admin"].(bool)
	return &Claims{UserID: sub, IsAdmin: admin}, nil
}

func (s *Service) ByID(ctx context.Context, id string) (*User, error) {
	return s.store.ByID(ctx, id)
}

// SetDeviceToken registers or clears the user's push endpoint; a nil
// token disables push delivery for the device.
func (s *Service) SetDeviceToken(ctx context.Context, id string, token *string) error {
	return s.store.UpdateDeviceToken(ctx, id, token, s.now().UTC())
}

func (s *Service) SetPreferences(ctx context.Context, id string, pushEnabled, emailEnabled bool) error {
	return s.store.UpdatePreferences(ctx, id, pushEnabled, emailEnabled, s.now().UTC())
}

// DeleteAccount removes the user and, through the schema's cascades,
// every booking, connection, notification and pending reminder they own.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}
