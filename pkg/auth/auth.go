// Package auth registers tenant owners, checks passwords and issues the
// HS256 session tokens used by the REST API.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/store"
	"dompet/pkg/validate"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// errInvalidCredentials is returned for every login failure so callers cannot
// tell an unknown email from a wrong password.
var errInvalidCredentials = apperr.Unauthorized("invalid credentials")

// Identity is the authenticated caller carried by a token.
type Identity struct {
	UserID   uint
	Email    string
	ClientID uint
}

// Claims is the token payload. sub holds the user id.
type Claims struct {
	Email    string `json:"email"`
	ClientID uint   `json:"clientId"`
	jwt.RegisteredClaims
}

// UserSummary is the public view returned by register and login.
type UserSummary struct {
	ID         uint   `json:"id"`
	Email      string `json:"email"`
	ClientID   uint   `json:"clientId"`
	ClientName string `json:"clientName"`
}

// Result is a successful register or login.
type Result struct {
	Token string      `json:"-"`
	User  UserSummary `json:"user"`
}

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	ClientName string `json:"clientName" validate:"required,min=2,max=255"`
}

// LoginInput is the login payload. Password length is not checked here so a
// short wrong password still reads as invalid credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Options tune token issuance and hashing.
type Options struct {
	Secret     []byte
	TTL        time.Duration
	BcryptCost int
}

type Service struct {
	users     store.UserRepository
	clients   store.ClientRepository
	registrar store.Registrar
	secret    []byte
	ttl       time.Duration
	cost      int
	log       *slog.Logger
	now       func() time.Time
	dummyHash []byte
}

func New(st *store.Store, opts Options, logger *slog.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.BcryptCost < bcrypt.DefaultCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	// compared against when the email is unknown so both failure paths hash once
	dummy, _ := bcrypt.GenerateFromPassword([]byte("dompet-login-placeholder"), opts.BcryptCost)
	return &Service{
		users:     st.Users,
		clients:   st.Clients,
		registrar: st.Registrar,
		secret:    opts.Secret,
		ttl:       opts.TTL,
		cost:      opts.BcryptCost,
		log:       logger.With("component", "auth"),
		now:       time.Now,
		dummyHash: dummy,
	}
}

// NormalizeEmail trims and lowercases an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword hashes with at least bcrypt.DefaultCost.
func HashPassword(password string, cost int) ([]byte, error) {
	if cost < bcrypt.DefaultCost {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	return h, nil
}

// Register creates a client and its first user, then signs a token for them.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	in.Email = NormalizeEmail(in.Email)
	in.ClientName = strings.TrimSpace(in.ClientName)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, apperr.Conflict("user with this email already exists")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if _, err := s.clients.FindActiveByName(ctx, in.ClientName); err == nil {
		return nil, apperr.Conflict("client name already taken")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, err
	}
	client := &models.Client{Name: in.ClientName, IsActive: true}
	user := &models.User{Email: in.Email, PasswordHash: hash, IsActive: true}
	// the unique indexes still catch a concurrent registration
	if err := s.registrar.RegisterOwner(ctx, client, user); err != nil {
		return nil, err
	}
	s.log.Info("registered client owner", "client_id", client.ID, "user_id", user.ID)

	return s.result(user, client)
}

// Login checks the credentials and signs a token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Result, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	user, err := s.check(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errInvalidCredentials
	}
	client, err := s.clients.FindByID(ctx, user.ClientID)
	if err != nil {
		return nil, err
	}
	return s.result(user, client)
}

// ValidateCredentials returns the identity for a matching email and password,
// and nil without error on a mismatch.
func (s *Service) ValidateCredentials(ctx context.Context, email, password string) (*Identity, error) {
	user, err := s.check(ctx, NormalizeEmail(email), password)
	if err != nil || user == nil {
		return nil, err
	}
	return &Identity{UserID: user.ID, Email: user.Email, ClientID: user.ClientID}, nil
}

func (s *Service) check(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.HasPassword() {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, nil
	}
	return user, nil
}

func (s *Service) result(u *models.User, c *models.Client) (*Result, error) {
	token, err := s.Issue(Identity{UserID: u.ID, Email: u.Email, ClientID: u.ClientID})
	if err != nil {
		return nil, err
	}
	return &Result{
		Token: token,
		User:  UserSummary{ID: u.ID, Email: u.Email, ClientID: u.ClientID, ClientName: c.Name},
	}, nil
}

// Issue signs a token for id.
func (s *Service) Issue(id Identity) (string, error) {
	now := s.now()
	claims := Claims{
		Email:    id.Email,
		ClientID: id.ClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(id.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", apperr.Internal("sign token", err)
	}
	return signed, nil
}

// Verify parses a token. Every failure is unauthorized.
func (s *Service) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, apperr.Unauthorized("missing token")
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperr.Unauthorized("invalid token")
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 || claims.ClientID == 0 {
		return nil, apperr.Unauthorized("invalid token claims")
	}
	return &Identity{UserID: uint(uid), Email: claims.Email, ClientID: claims.ClientID}, nil
}
