package adminauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/busspass/busspass/pkg/config"
	"github.com/busspass/busspass/pkg/rtdb"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog/log"
)

const CredentialsPath = "adminCredentials"

var (
	ErrUnauthorizedUser   = errors.New("unauthorized user")
	ErrNoAdminData        = errors.New("no admin data found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Credentials is the admin account stored in the realtime tree.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator checks the admin login against the tree and signs the tokens
// that guard the rest of the API.
type Authenticator struct {
	Tree rtdb.Tree

	adminEmail string
	issuer     string
	audience   string
	ttl        time.Duration
	secret     []byte

	validator *validator.Validator
	now       func() time.Time
}

func New(tree rtdb.Tree, authConfig config.AuthConfig) (*Authenticator, error) {
	secret := []byte(authConfig.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}

		log.Warn().Msg("No auth secret configured, admin tokens will not survive a restart")
	}

	authenticator := &Authenticator{
		Tree:       tree,
		adminEmail: authConfig.AdminEmail,
		issuer:     authConfig.Issuer,
		audience:   authConfig.Audience,
		ttl:        authConfig.TokenTTL,
		secret:     secret,
		now:        time.Now,
	}

	jwtValidator, err := validator.New(
		authenticator.keyFunc,
		validator.HS256,
		authConfig.Issuer,
		[]string{authConfig.Audience},
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("set up token validator: %w", err)
	}
	authenticator.validator = jwtValidator

	return authenticator, nil
}

func (a *Authenticator) keyFunc(context.Context) (interface{}, error) {
	return a.secret, nil
}

// Login checks email and password against the stored admin credentials and
// returns a signed session token.
func (a *Authenticator) Login(ctx context.Context, email string, password string) (*Session, error) {
	if email != a.adminEmail {
		return nil, ErrUnauthorizedUser
	}

	var credentials *Credentials
	if err := a.Tree.Get(ctx, CredentialsPath, &credentials); err != nil {
		return nil, fmt.Errorf("get admin credentials: %w", err)
	}
	if credentials == nil {
		return nil, ErrNoAdminData
	}

	emailMatch := subtle.ConstantTimeCompare([]byte(credentials.Email), []byte(email))
	passwordMatch := subtle.ConstantTimeCompare([]byte(credentials.Password), []byte(password))
	if emailMatch&passwordMatch != 1 {
		log.Warn().Str("email", email).Msg("Rejected admin login")
		return nil, ErrInvalidCredentials
	}

	now := a.now()
	expiresAt := now.Add(a.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   email,
		Audience:  jwt.ClaimStrings{a.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign admin token: %w", err)
	}

	log.Info().Str("email", email).Time("expires", expiresAt).Msg("Admin signed in")

	return &Session{
		Token:     signed,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// Validate returns the admin email a token was issued to.
func (a *Authenticator) Validate(ctx context.Context, token string) (string, error) {
	claims, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}

	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return "", errors.New("unexpected token claims")
	}

	return validated.RegisteredClaims.Subject, nil
}
