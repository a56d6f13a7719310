package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionTTL  = 2 * time.Hour
	RecoveryTTL = 50 * time.Minute
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the payload carried by session, confirmation and recovery tokens.
type Claims struct {
	UID      string `json:"uid"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type JWT struct {
	secret []byte
	now    func() time.Time
}

type Option func(*JWT)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(j *JWT) {
		j.now = now
	}
}

func NewJWT(secret string, opts ...Option) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}

	j := &JWT{secret: []byte(secret), now: time.Now}

	for _, opt := range opts {
		opt(j)
	}

	return j, nil
}

func (j *JWT) IssueSession(claims Claims) (string, error) {
	return j.issue(claims, SessionTTL)
}

// IssueRecovery mints the short lived tokens used for email confirmation and
// password recovery.
func (j *JWT) IssueRecovery(claims Claims) (string, error) {
	return j.issue(claims, RecoveryTTL)
}

func (j *JWT) issue(claims Claims, ttl time.Duration) (string, error) {
	if claims.UID == "" {
		return "", fmt.Errorf("%w: missing uid", ErrTokenInvalid)
	}

	now := j.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(j.secret)
}

func (j *JWT) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}

		slog.Debug("JWT#Verify", "error", err)
		return nil, ErrTokenInvalid
	}

	if !token.Valid || claims.UID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
