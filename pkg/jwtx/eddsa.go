package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs Claims into compact JWTs.
type Signer interface {
	KID() string
	Sign(Claims) (string, error)
}

// Verifier validates a JWT and returns its claims if legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// KeyPair is an Ed25519 signing key that can both sign and verify session
// tokens. One process signs and verifies its own tokens, so a single pair
// covers both roles.
type KeyPair struct {
	kid    string
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	issuer string
}

// NewEphemeralKeyPair generates a fresh Ed25519 keypair. Tokens signed with
// it die with the process, which also bounds the blast radius of a leaked
// key to one deployment.
func NewEphemeralKeyPair(issuer string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate ed25519 key: %w", err)
	}

	var kidBytes [8]byte
	if _, err := rand.Read(kidBytes[:]); err != nil {
		return nil, fmt.Errorf("jwtx: generate kid: %w", err)
	}

	return &KeyPair{
		kid:    fmt.Sprintf("%x", kidBytes),
		priv:   priv,
		pub:    pub,
		issuer: issuer,
	}, nil
}

func (k *KeyPair) KID() string { return k.kid }

// Sign turns claims into a signed compact JWT with the kid header set.
func (k *KeyPair) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = k.kid
	return t.SignedString(k.priv)
}

// Verify parses and validates a token string against this keypair and the
// configured issuer.
func (k *KeyPair) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" && kid != k.kid {
			return nil, fmt.Errorf("jwtx: unknown kid %q", kid)
		}
		return k.pub, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("jwtx: invalid token claims")
	}

	if err := claims.ValidateIssuer(k.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}
