package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/diewo77/devispro/auth"
	"github.com/diewo77/devispro/internal/apperr"
	"github.com/diewo77/devispro/internal/billing"
	"github.com/diewo77/devispro/internal/events"
	"github.com/diewo77/devispro/internal/metrics"
	"github.com/diewo77/devispro/internal/models"
	"github.com/diewo77/devispro/internal/repository"
	"github.com/diewo77/devispro/validation"
)

// RegisterInput is the registration form.
type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password" validate:"required"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	CompanyName string `json:"companyName"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	SIRET       string `json:"siret"`
}

// Session is what register and login hand back to the client.
type Session struct {
	Token string
	User  *models.User
}

type AuthService struct {
	store    repository.Store
	tokens   *auth.Authenticator
	provider billing.Provider // nil when billing is not configured
	notify   notifier
	logger   *slog.Logger
}

func NewAuthService(store repository.Store, tokens *auth.Authenticator, provider billing.Provider, pub events.Publisher, logger *slog.Logger) *AuthService {
	n := newNotifier(pub, logger)
	return &AuthService{store: store, tokens: tokens, provider: provider, notify: n, logger: n.logger}
}

// Register creates a free-tier account with the starting credits and returns
// a signed token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	const op = "auth.register"
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	v := validation.Violations{}
	validation.Email("email", in.Email, v)
	if err := validation.Struct(in, v); err != nil {
		return nil, apperr.Internal(err, op)
	}
	validation.MaxBytes("password", in.Password, auth.MaxPasswordBytes, v)
	if !v.Empty() {
		return nil, apperr.Violations(op, v)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err, op)
	}
	u := &models.User{
		Email:            in.Email,
		PasswordHash:     hash,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		CompanyName:      strings.TrimSpace(in.CompanyName),
		Phone:            strings.TrimSpace(in.Phone),
		Address:          strings.TrimSpace(in.Address),
		SIRET:            strings.TrimSpace(in.SIRET),
		Credits:          models.FreeCredits,
		SubscriptionTier: models.TierFree,
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict(op, "email_exists", "email already registered")
		}
		return nil, apperr.Internal(err, op)
	}
	metrics.UsersRegistered.Inc()

	// Provisioning the customer is best effort; checkout retries it.
	if s.provider != nil {
		if ref, err := s.provider.CreateCustomer(ctx, u.Email, u.FullName(), u.ID); err != nil {
			s.logger.Warn("create payment customer failed", "user_id", u.ID, "error", err)
		} else if err := s.store.Users().SetCustomerRef(ctx, u.ID, ref); err != nil {
			s.logger.Warn("store payment customer failed", "user_id", u.ID, "error", err)
		} else {
			u.PaymentCustomerRef = ref
		}
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, apperr.Internal(err, op)
	}
	s.notify.publish(ctx, events.UserRegistered, u.ID, map[string]any{"email": u.Email})
	s.logger.Info("user registered", "user_id", u.ID)
	return &Session{Token: token, User: u}, nil
}

// Login checks the password against the stored bcrypt hash. Unknown email and
// wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	const op = "auth.login"
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Validation(op, "missing_fields", "email and password required")
	}
	u, err := s.store.Users().ByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		auth.CompareDummy(password)
		return nil, apperr.Auth(op, "invalid_credentials", "invalid credentials")
	}
	if err != nil {
		return nil, apperr.Internal(err, op)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, apperr.Auth(op, "invalid_credentials", "invalid credentials")
	}
	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, apperr.Internal(err, op)
	}
	return &Session{Token: token, User: u}, nil
}

// Verify decodes a token. Any failure is an auth error.
func (s *AuthService) Verify(token string) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindAuth, "auth.verify", "invalid_token", "invalid token")
	}
	return claims, nil
}

// CurrentUser loads the account behind an authenticated request.
func (s *AuthService) CurrentUser(ctx context.Context, id uint) (*models.User, error) {
	u, err := s.store.Users().ByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("auth.user", "user_not_found", "user not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "auth.user")
	}
	return u, nil
}

// UserExists backs auth.UserVerifier.
func (s *AuthService) UserExists(ctx context.Context, id uint) bool {
	ok, err := s.store.Users().Exists(ctx, id)
	return err == nil && ok
}
