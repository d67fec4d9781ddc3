package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strings"

	"github.com/fathima-sithara/relay-service/internal/config"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified caller.
type Identity struct {
	UserID string
	Email  string
}

// Verifier is shared by the REST middleware and the websocket upgrade.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// Claims accepts the identity under sub, user_id or id.
type Claims struct {
	LegacyID string `json:"id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() string {
	switch {
	case c.Subject != "":
		return c.Subject
	case c.UserID != "":
		return c.UserID
	default:
		return c.LegacyID
	}
}

type JWTVerifier struct {
	alg    string
	pub    *rsa.PublicKey
	secret []byte
}

func NewHS256Verifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{alg: jwt.SigningMethodHS256.Alg(), secret: secret}
}

func NewRS256Verifier(pub *rsa.PublicKey) *JWTVerifier {
	return &JWTVerifier{alg: jwt.SigningMethodRS256.Alg(), pub: pub}
}

func NewVerifier(cfg config.JWT) (*JWTVerifier, error) {
	switch strings.ToUpper(cfg.Alg) {
	case "HS256":
		return NewHS256Verifier([]byte(cfg.HSSecret)), nil
	case "RS256":
		pub, err := LoadRSAPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		return NewRS256Verifier(pub), nil
	default:
		return nil, fmt.Errorf("unsupported jwt alg %q", cfg.Alg)
	}
}

// LoadRSAPublicKey reads a PEM encoded RSA public key (PKIX or PKCS1).
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwt public key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key %s: %w", path, err)
	}
	return pub, nil
}

func (j *JWTVerifier) keyFunc(t *jwt.Token) (interface{}, error) {
	if j.pub != nil {
		return j.pub, nil
	}
	return j.secret, nil
}

func (j *JWTVerifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, errs.ErrMissingToken
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(token, claims, j.keyFunc, jwt.WithValidMethods([]string{j.alg}))
	if err != nil || !tok.Valid {
		return Identity{}, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}
	id := claims.identity()
	if id == "" {
		return Identity{}, fmt.Errorf("%w: no identity claim", errs.ErrInvalidToken)
	}
	return Identity{UserID: id, Email: claims.Email}, nil
}

// BearerToken extracts the token from an Authorization header value. A header
// that presents no bearer token, including another scheme or a bare "Bearer",
// yields ErrMissingToken. Token validity is left to Verify.
func BearerToken(header string) (string, error) {
	scheme, tok, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "bearer") {
		return "", errs.ErrMissingToken
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", errs.ErrMissingToken
	}
	return tok, nil
}
