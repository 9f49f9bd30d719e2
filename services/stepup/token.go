package stepup

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrProofTokenDisabled = errors.New("step-up proof tokens are not configured")
	ErrInvalidProofToken  = errors.New("invalid step-up proof token")
)

const proofPurpose = "step_up"

// ProofClaims is the payload of the short-lived token minted on a
// successful step-up, letting a guarded action elsewhere check that the
// second factor was proven recently without re-running the gate.
type ProofClaims struct {
	UserID  string `json:"user_id"`
	Method  string `json:"method"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (s *Service) mintProofToken(userID string, method Method) (string, error) {
	if s.config.StepUp.TokenSecret == "" {
		return "", nil
	}

	now := time.Now()
	claims := ProofClaims{
		UserID:  userID,
		Method:  string(method),
		Purpose: proofPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.config.StepUp.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.StepUp.TokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.StepUp.TokenSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign step-up proof token: %w", err)
	}
	return signed, nil
}

// VerifyProofToken validates a proof token and returns the user it vouches
// for. Guarded actions call this instead of trusting a boolean handed
// through several layers.
func (s *Service) VerifyProofToken(tokenString string) (string, error) {
	if s.config.StepUp.TokenSecret == "" {
		return "", ErrProofTokenDisabled
	}

	var claims ProofClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.StepUp.TokenSecret), nil
	}, jwt.WithIssuer(s.config.StepUp.Issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", ErrInvalidProofToken
	}

	if claims.Purpose != proofPurpose || claims.UserID == "" {
		return "", ErrInvalidProofToken
	}

	return claims.UserID, nil
}
