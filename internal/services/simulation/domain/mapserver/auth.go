// auth.go verifies the LoginPlayer session token at the wire boundary.
// Adapted from the teacher's
// domain/campaign/invite/join_grant.go ValidateJoinGrant: same
// Ed25519/EdDSA-only verification posture, same claims-then-expected
// comparison shape, narrowed to the one thing a map server needs to
// know about a connecting player (their stable player id) rather than a
// full campaign/invite/user identity triple. Full session issuance is a
// collaborator outside this module.
package mapserver

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/chancehudson/keind-engine/internal/errors"
)

// SessionTokenConfig configures LoginPlayer token verification.
type SessionTokenConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// SessionClaims is a validated LoginPlayer session token.
type SessionClaims struct {
	PlayerID  string
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	PlayerID string `json:"player_id"`
}

// VerifySessionToken validates token against cfg and returns the
// player id it grants a session for.
func VerifySessionToken(token string, cfg SessionTokenConfig) (SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionClaims{}, apperrors.New(apperrors.CodeMalformedWireFrame, "session token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return SessionClaims{}, errors.New("session token verifier is not configured")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return SessionClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return SessionClaims{}, apperrors.WithMetadata(
			apperrors.CodeMalformedWireFrame, "session token issuer mismatch",
			map[string]string{"field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return SessionClaims{}, apperrors.WithMetadata(
			apperrors.CodeMalformedWireFrame, "session token audience mismatch",
			map[string]string{"field": "audience"},
		)
	}
	if parsed.ExpiresAt == nil {
		return SessionClaims{}, apperrors.New(apperrors.CodeMalformedWireFrame, "session token exp is required")
	}
	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return SessionClaims{}, apperrors.New(apperrors.CodeMalformedWireFrame, "session token is expired")
	}
	if strings.TrimSpace(parsed.PlayerID) == "" {
		return SessionClaims{}, apperrors.New(apperrors.CodeMalformedWireFrame, "session token player_id is required")
	}

	return SessionClaims{PlayerID: parsed.PlayerID, ExpiresAt: exp}, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeMalformedWireFrame, "session token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeMalformedWireFrame, "session token alg is invalid")
	}
	return apperrors.New(apperrors.CodeMalformedWireFrame, "session token is invalid")
}

func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}
