// Package auth authenticates teams with HS256 access tokens.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"codearena/internal/common/cache"
	pkgerrors "codearena/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const revokedKeyPrefix = "auth:revoked:"

// TeamInfo identifies an authenticated team.
type TeamInfo struct {
	TeamID    string
	ExpiresAt time.Time
}

// Service validates team access tokens. Revocation checks need a cache; without one they are skipped.
type Service struct {
	jwtSecret []byte
	jwtIssuer string
	revoked   cache.Cache
	now       func() time.Time
}

func NewService(jwtSecret, jwtIssuer string, revoked cache.Cache) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		jwtIssuer: jwtIssuer,
		revoked:   revoked,
		now:       time.Now,
	}
}

type tokenClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *Service) Authenticate(ctx context.Context, raw string) (TeamInfo, error) {
	if raw == "" {
		return TeamInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return TeamInfo{}, err
	}
	if s.revoked != nil {
		val, err := s.revoked.Get(ctx, revokedKeyPrefix+hashToken(raw))
		if err != nil {
			return TeamInfo{}, pkgerrors.Wrap(err, pkgerrors.ServiceUnavailable)
		}
		if val != "" {
			return TeamInfo{}, pkgerrors.New(pkgerrors.TokenInvalid).WithMessage("token has been revoked")
		}
	}
	info := TeamInfo{TeamID: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Issue signs an access token for teamID valid for ttl.
func (s *Service) Issue(teamID string, ttl time.Duration) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("jwt secret is not configured")
	}
	if teamID == "" {
		return "", pkgerrors.ValidationError("team_id", "required")
	}
	now := s.now()
	claims := tokenClaims{
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   teamID,
			Issuer:    s.jwtIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.InternalServerError)
	}
	return signed, nil
}

// Revoke blocks raw until it would have expired anyway.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	if s.revoked == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("token revocation is not configured")
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return err
	}
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.revoked.Set(ctx, revokedKeyPrefix+hashToken(raw), "1", ttl); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CacheSetFailed)
	}
	return nil
}

func (s *Service) parseToken(raw string) (*tokenClaims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if s.jwtIssuer != "" && claims.Issuer != s.jwtIssuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != "access" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
