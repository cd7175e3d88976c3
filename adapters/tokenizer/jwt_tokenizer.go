package tokenizer

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/demogate/core"
	"github.com/layer-3/demogate/ports"
	"github.com/thejerf/abtime"
)

const AudienceSession = "demogate:session"

// JWTTokenizer implements the Tokenizer interface using HMAC-signed JWTs
type JWTTokenizer struct {
	signKey ports.Secret
	clock   abtime.AbstractTime
}

// NewJWTTokenizer creates a new JWT tokenizer. A nil signKey yields a
// tokenizer that refuses to sign and rejects every token.
func NewJWTTokenizer(signKey ports.Secret, clock abtime.AbstractTime) ports.Tokenizer {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &JWTTokenizer{signKey: signKey, clock: clock}
}

// SessionToToken converts a Session to a signed JWT
func (j *JWTTokenizer) SessionToToken(session *core.Session) (string, error) {
	if j.signKey == nil {
		return "", core.ErrNotConfigured
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Subject,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	var signedToken string
	err := j.signKey.Use(func(key []byte) error {
		var err error
		signedToken, err = token.SignedString(key)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, nil
}

// TokenToSession parses a session token and returns the associated session.
// Signature, audience and expiry are all checked against the tokenizer clock.
func (j *JWTTokenizer) TokenToSession(tokenStr string) (*core.Session, error) {
	if tokenStr == "" {
		return nil, core.ErrInvalidToken
	}
	if j.signKey == nil {
		return nil, core.ErrNotConfigured
	}

	var token *jwt.Token
	err := j.signKey.Use(func(key []byte) error {
		var err error
		token, err = jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
			jwt.WithAudience(AudienceSession),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(j.clock.Now),
		)
		return err
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("failed to parse token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("failed to parse token: %w: %w", core.ErrInvalidToken, err)
	}

	// Validate token
	if !token.Valid {
		return nil, core.ErrInvalidToken
	}

	// Extract claims
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("invalid claims type: %w", core.ErrInvalidToken)
	}

	session := &core.Session{
		ID:        claims.ID,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}

	return session, nil
}
