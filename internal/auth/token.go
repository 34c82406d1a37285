package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/marketplace-service/internal/config"
	"github.com/spec-kit/marketplace-service/internal/domain"
)

var (
	// ErrTokenExpired is returned for tokens past their expiry plus leeway.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenManager verifies HS256 access tokens minted by the identity service.
type TokenManager struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewTokenManager builds a manager from the auth settings.
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	ttl := time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Duration(cfg.LeewaySeconds) * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &TokenManager{
		secret:   []byte(cfg.JWTSecret),
		ttl:      ttl,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		parser:   jwt.NewParser(opts...),
	}
}

// Claims names the subject a token was minted for.
type Claims struct {
	SubjectType domain.SubjectType `json:"subject_type"`
	SubjectID   string             `json:"-"`
	jwt.RegisteredClaims
}

// ParseToken verifies the signature and registered claims and returns the subject.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := tm.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return tm.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims.SubjectID = claims.RegisteredClaims.Subject
	if claims.SubjectID == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrTokenInvalid)
	}
	if claims.SubjectType != domain.SubjectTypeUser && claims.SubjectType != domain.SubjectTypeModerator {
		return nil, fmt.Errorf("%w: unknown subject type %q", ErrTokenInvalid, claims.SubjectType)
	}
	return claims, nil
}

// Sign mints a token the way the identity service does. Used by tests and local
// tooling; the service itself never issues credentials.
func (tm *TokenManager) Sign(subject domain.SubjectType, subjectID string, now time.Time) (string, error) {
	registered := jwt.RegisteredClaims{
		Subject:   subjectID,
		Issuer:    tm.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
	}
	if tm.audience != "" {
		registered.Audience = jwt.ClaimStrings{tm.audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{SubjectType: subject, RegisteredClaims: registered})
	return token.SignedString(tm.secret)
}
