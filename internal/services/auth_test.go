package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/devispro/internal/apperr"
	"github.com/diewo77/devispro/internal/events"
	"github.com/diewo77/devispro/internal/models"
)

func TestRegisterThenLogin(t *testing.T) {
	store := setupStore(t)
	pub := &recordingPublisher{}
	provider := &fakeProvider{}
	svc := NewAuthService(store, newTokens(), provider, pub, discard)
	ctx := context.Background()

	sess, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "pw", FirstName: "A", LastName: "B"})
	require.NoError(t, err)
	assert.Equal(t, models.FreeCredits, sess.User.Credits)
	assert.Equal(t, models.TierFree, sess.User.SubscriptionTier)
	assert.Equal(t, "cus_1", sess.User.PaymentCustomerRef)
	assert.NotEqual(t, "pw", sess.User.PasswordHash)
	assert.True(t, strings.HasPrefix(sess.User.PasswordHash, "$2"))

	login, err := svc.Login(ctx, "a@b.com", "pw")
	require.NoError(t, err)
	claims, err := svc.Verify(login.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, sess.User.ID, claims.UserID)
	assert.True(t, claims.ExpiresAt.After(time.Now()))

	assert.Equal(t, []string{events.UserRegistered}, pub.types())
	assert.True(t, svc.UserExists(ctx, sess.User.ID))
	assert.False(t, svc.UserExists(ctx, 999))
}

func TestRegisterValidation(t *testing.T) {
	svc := NewAuthService(setupStore(t), newTokens(), nil, nil, discard)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "nope", Password: "pw", FirstName: "A"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	details := ae.Details.(map[string]string)
	assert.Equal(t, "invalid_email", details["email"])
	assert.Equal(t, "required", details["lastName"])
	assert.NotContains(t, details, "password")
}

func TestRegisterRejectsOversizedPassword(t *testing.T) {
	svc := NewAuthService(setupStore(t), newTokens(), nil, nil, discard)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: strings.Repeat("p", 80), FirstName: "A", LastName: "B"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 400, apperr.Status(err))
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "too_long", ae.Details.(map[string]string)["password"])

	// 72 multi-byte runes are still too many bytes
	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: strings.Repeat("é", 40), FirstName: "A", LastName: "B"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: strings.Repeat("p", 72), FirstName: "A", LastName: "B"})
	require.NoError(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewAuthService(setupStore(t), newTokens(), nil, nil, discard)
	ctx := context.Background()
	in := RegisterInput{Email: "a@b.com", Password: "pw", FirstName: "A", LastName: "B"}
	_, err := svc.Register(ctx, in)
	require.NoError(t, err)

	in.Email = " A@B.com"
	_, err = svc.Register(ctx, in)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	code, _ := apperr.Public(err)
	assert.Equal(t, "email_exists", code)
}

func TestRegisterSurvivesProviderFailure(t *testing.T) {
	provider := &fakeProvider{customerErr: errors.New("stripe down")}
	svc := NewAuthService(setupStore(t), newTokens(), provider, nil, discard)

	sess, err := svc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "pw", FirstName: "A", LastName: "B"})
	require.NoError(t, err)
	assert.Empty(t, sess.User.PaymentCustomerRef)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	store := setupStore(t)
	svc := NewAuthService(store, newTokens(), nil, nil, discard)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "pw", FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	_, wrongPass := svc.Login(ctx, "a@b.com", "other")
	_, unknown := svc.Login(ctx, "x@b.com", "pw")
	for _, err := range []error{wrongPass, unknown} {
		assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
		code, _ := apperr.Public(err)
		assert.Equal(t, "invalid_credentials", code)
	}

	_, err = svc.Login(ctx, "", "pw")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLoginUnknownEmailStillHashes(t *testing.T) {
	store := setupStore(t)
	svc := NewAuthService(store, newTokens(), nil, nil, discard)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "pw", FirstName: "A", LastName: "B"})
	require.NoError(t, err)
	_, _ = svc.Login(ctx, "x@b.com", "warmup")

	elapsed := func(email string) time.Duration {
		start := time.Now()
		_, err := svc.Login(ctx, email, "wrong")
		require.Error(t, err)
		return time.Since(start)
	}
	wrongPass := elapsed("a@b.com")
	unknown := elapsed("x@b.com")
	assert.GreaterOrEqual(t, unknown, wrongPass/4, "unknown email answered in %v, wrong password in %v", unknown, wrongPass)
}

func TestVerifyAndCurrentUser(t *testing.T) {
	store := setupStore(t)
	svc := NewAuthService(store, newTokens(), nil, nil, discard)

	_, err := svc.Verify("garbage")
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	u := seedUser(t, store, "c@d.com", 3, models.TierFree)
	got, err := svc.CurrentUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "c@d.com", got.Email)

	_, err = svc.CurrentUser(context.Background(), 999)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
