package workflow

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	confirmationIssuer   = "lacoctelera"
	confirmationAudience = "token-request-confirmation"

	// DefaultConfirmationValidity is how long a confirmation link stays usable
	DefaultConfirmationValidity = 24 * time.Hour
	minSecretLength             = 32
)

var (
	// ErrInvalidConfirmation covers malformed, forged, expired and mismatched codes
	ErrInvalidConfirmation = errors.New("invalid confirmation code")
	ErrMissingSecret       = errors.New("confirmation secret is required")
)

// ConfirmationClaims binds a confirmation code to one account and email
type ConfirmationClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Confirmer signs and verifies the codes embedded in confirmation links
type Confirmer struct {
	secret   []byte
	validity time.Duration
	nowFunc  func() time.Time
}

func NewConfirmer(secret string, validity time.Duration) (*Confirmer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("%w: at least %d characters", ErrMissingSecret, minSecretLength)
	}
	if validity <= 0 {
		validity = DefaultConfirmationValidity
	}
	return &Confirmer{secret: []byte(secret), validity: validity, nowFunc: time.Now}, nil
}

// GenerateSecret returns a random secret for development setups
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Issue returns a signed code for the account
func (c *Confirmer) Issue(account *models.APIUser) (string, error) {
	now := c.nowFunc()
	claims := &ConfirmationClaims{
		Email: strings.ToLower(account.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    confirmationIssuer,
			Subject:   account.ID,
			Audience:  jwt.ClaimStrings{confirmationAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.validity)),
		},
	}
	code, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign confirmation code: %w", err)
	}
	return code, nil
}

// Verify checks signature, issuer, audience and expiry and returns the claims
func (c *Confirmer) Verify(code string) (*ConfirmationClaims, error) {
	if code == "" {
		return nil, ErrInvalidConfirmation
	}
	claims := &ConfirmationClaims{}
	token, err := jwt.ParseWithClaims(code, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(confirmationIssuer),
		jwt.WithAudience(confirmationAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfirmation, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidConfirmation
	}
	return claims, nil
}
