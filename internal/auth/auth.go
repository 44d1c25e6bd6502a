// Package auth provides API key authentication, JWT issuance and RBAC roles
// for turneval clients.
//
// Tokens are signed with Ed25519 (EdDSA). Keys are loaded from PEM files or,
// for development, generated at startup.
package auth

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rolecraft/turneval/internal/model"
)

const (
	tokenIssuer = "turneval"

	// clockSkew tolerates small clock differences between replicas.
	clockSkew = 30 * time.Second
)

// Claims extends jwt.RegisteredClaims with the client identity.
type Claims struct {
	jwt.RegisteredClaims
	ClientID string           `json:"client_id"`
	Role     model.ClientRole `json:"role"`
}

// JWTManager signs and verifies client tokens.
type JWTManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expiration time.Duration
	parser     *jwt.Parser
}

// NewJWTManager loads the key pair from PEM files. With both paths empty it
// generates an ephemeral pair, so tokens do not survive a restart.
func NewJWTManager(privateKeyPath, publicKeyPath string, expiration time.Duration) (*JWTManager, error) {
	var (
		priv ed25519.PrivateKey
		pub  ed25519.PublicKey
		err  error
	)
	if privateKeyPath == "" || publicKeyPath == "" {
		slog.Warn("auth: no JWT key files configured, generating ephemeral key pair (not for production)")
		pub, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}
	} else {
		priv, pub, err = loadKeyPair(privateKeyPath, publicKeyPath)
		if err != nil {
			return nil, err
		}
	}

	return &JWTManager{
		privateKey: priv,
		publicKey:  pub,
		expiration: expiration,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithAudience(tokenIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(clockSkew),
		),
	}, nil
}

// loadKeyPair reads a PKCS#8 private key and a PKIX public key and checks
// that they belong together.
func loadKeyPair(privateKeyPath, publicKeyPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	privDER, err := readPEM(privateKeyPath, "private key")
	if err != nil {
		return nil, nil, err
	}
	privKey, err := x509.ParsePKCS8PrivateKey(privDER)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: parse private key: %w", err)
	}
	priv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, nil, errors.New("auth: private key is not Ed25519")
	}

	pubDER, err := readPEM(publicKeyPath, "public key")
	if err != nil {
		return nil, nil, err
	}
	pubKey, err := x509.ParsePKIXPublicKey(pubDER)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	pub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, nil, errors.New("auth: public key is not Ed25519")
	}

	if !bytes.Equal(priv.Public().(ed25519.PublicKey), pub) {
		return nil, nil, errors.New("auth: public key does not match private key")
	}
	return priv, pub, nil
}

func readPEM(path, what string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("auth: read %s: %w", what, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("auth: %s: no PEM block in %s", what, path)
	}
	return block.Bytes, nil
}

// IssueToken signs a token for client, valid for the configured expiration.
func (m *JWTManager) IssueToken(client Client) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(m.expiration)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   client.Subject().String(),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenIssuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		ClientID: client.ID,
		Role:     client.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken verifies the signature and registered claims of a token.
// It does not consult the keyring; see Keyring.Admit.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return m.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("auth: invalid subject (expected UUID): %w", err)
	}
	if claims.ClientID == "" {
		return nil, errors.New("auth: token has no client_id")
	}
	return claims, nil
}
