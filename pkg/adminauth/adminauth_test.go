package adminauth

import (
	"context"
	"testing"
	"time"

	"github.com/busspass/busspass/pkg/config"
	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthenticator(t *testing.T, secret string) (*Authenticator, *rtdb.MemoryTree) {
	tree := rtdb.NewMemoryTree()
	require.NoError(t, tree.Load([]byte(`{"adminCredentials": {"email": "admin@busspass.com", "password": "s3cret"}}`)))

	authConfig := config.Default().Auth
	authConfig.Secret = secret

	authenticator, err := New(tree, authConfig)
	require.NoError(t, err)

	return authenticator, tree
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	authenticator, _ := newAuthenticator(t, "0123456789abcdef0123")

	_, err := authenticator.Login(ctx, "someone@busspass.com", "s3cret")
	assert.ErrorIs(t, err, ErrUnauthorizedUser)

	_, err = authenticator.Login(ctx, "admin@busspass.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := authenticator.Login(ctx, "admin@busspass.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), session.ExpiresAt, time.Minute)

	email, err := authenticator.Validate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin@busspass.com", email)
}

func TestLoginWithoutStoredCredentials(t *testing.T) {
	ctx := context.Background()
	authenticator, tree := newAuthenticator(t, "")

	require.NoError(t, tree.Delete(ctx, CredentialsPath))

	_, err := authenticator.Login(ctx, "admin@busspass.com", "s3cret")
	assert.ErrorIs(t, err, ErrNoAdminData)
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	authenticator, _ := newAuthenticator(t, "0123456789abcdef0123")
	other, _ := newAuthenticator(t, "fedcba9876543210fedc")

	session, err := other.Login(ctx, "admin@busspass.com", "s3cret")
	require.NoError(t, err)

	_, err = authenticator.Validate(ctx, session.Token)
	assert.Error(t, err)

	_, err = authenticator.Validate(ctx, "not-a-token")
	assert.Error(t, err)

	authenticator.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	expired, err := authenticator.Login(ctx, "admin@busspass.com", "s3cret")
	require.NoError(t, err)

	_, err = authenticator.Validate(ctx, expired.Token)
	assert.Error(t, err)
}
