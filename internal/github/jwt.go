// Package github resolves the credentials the tracker transports authenticate
// with: a personal token from the environment or a GitHub App installation token.
package github

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// MaxJWTDuration is the longest lifetime GitHub accepts for an App JWT.
const MaxJWTDuration = 10 * time.Minute

// clockSkew backdates iat so a server clock slightly behind ours still accepts the JWT.
const clockSkew = 60 * time.Second

// AppSigner signs the JWTs a GitHub App presents when requesting installation tokens.
type AppSigner struct {
	appID      int64
	privateKey *rsa.PrivateKey
}

// NewAppSigner parses the App's PEM private key.
func NewAppSigner(appID int64, privateKeyPEM []byte) (*AppSigner, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("app ID must be positive")
	}

	privateKey, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &AppSigner{appID: appID, privateKey: privateKey}, nil
}

// Sign returns a JWT issued at now and valid for ttl.
func (s *AppSigner) Sign(now time.Time, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("duration must be positive")
	}
	if ttl > MaxJWTDuration {
		return "", fmt.Errorf("duration %v exceeds maximum allowed %v", ttl, MaxJWTDuration)
	}

	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(s.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-clockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}
