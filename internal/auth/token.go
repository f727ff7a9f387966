package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

var (
	// ErrTokenExpired is returned by Verify for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenManager issues and verifies the bearer tokens of citizens and moderators.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a manager signing HS256 tokens for issuer.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Claims is the token payload. Citizens carry their user id as the
// registered subject; moderators share one identity and carry none.
type Claims struct {
	Kind domain.SubjectType `json:"kind"`
	jwt.RegisteredClaims
}

// UserID returns the citizen id, empty for moderators.
func (c *Claims) UserID() string {
	if c.Kind != domain.SubjectTypeCitizen {
		return ""
	}
	return c.Subject
}

func (c *Claims) checkKind() error {
	switch c.Kind {
	case domain.SubjectTypeCitizen:
		if c.Subject == "" {
			return errors.New("citizen token without subject")
		}
	case domain.SubjectTypeModerator:
		if c.Subject != "" {
			return errors.New("moderator token with subject")
		}
	default:
		return fmt.Errorf("unknown token kind %q", c.Kind)
	}
	return nil
}

// IssueCitizen signs a token for the given user.
func (tm *TokenManager) IssueCitizen(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("citizen token needs a user id")
	}
	return tm.issue(domain.SubjectTypeCitizen, userID)
}

// IssueModerator signs a moderator token.
func (tm *TokenManager) IssueModerator() (string, time.Time, error) {
	return tm.issue(domain.SubjectTypeModerator, "")
}

func (tm *TokenManager) issue(kind domain.SubjectType, subject string) (string, time.Time, error) {
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tm.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer and expiry, and that the kind matches the subject.
func (tm *TokenManager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return tm.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if err := claims.checkKind(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}
