// Package relay carries generation jobs from the queue to the AI provider and
// delivers the result to the callback endpoint with a signed envelope.
package relay

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureHeader carries the callback signature.
const SignatureHeader = "Upstash-Signature"

var ErrInvalidSignature = errors.New("invalid signature")

type signatureClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// Signer issues short-lived HS256 tokens binding a callback body.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(key, issuer string, ttl time.Duration) (*Signer, error) {
	if key == "" {
		return nil, errors.New("relay: signing key is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Signer{key: []byte(key), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Sign returns a token for body addressed to subject (the callback url).
func (s *Signer) Sign(subject string, body []byte) (string, error) {
	now := s.now()
	claims := signatureClaims{
		Body: bodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verifier accepts tokens signed with the current or the next key, so keys can
// be rotated without dropping in-flight callbacks.
type Verifier struct {
	keys   [][]byte
	issuer string
	now    func() time.Time
}

func NewVerifier(current, next, issuer string) (*Verifier, error) {
	if current == "" {
		return nil, errors.New("relay: signing key is required")
	}
	keys := [][]byte{[]byte(current)}
	if next != "" {
		keys = append(keys, []byte(next))
	}
	return &Verifier{keys: keys, issuer: issuer, now: time.Now}, nil
}

func (v *Verifier) Verify(token string, body []byte) error {
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidSignature)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var lastErr error
	for _, key := range v.keys {
		claims := &signatureClaims{}
		_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, opts...)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimRight(claims.Body, "=") != bodyHash(body) {
			return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
