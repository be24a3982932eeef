package tokens

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrRevoked is returned for a token signed before the last Expire call.
var ErrRevoked = errors.New("token has been revoked")

// Issuer signs and checks HS256 access tokens. Every token carries the
// issuer generation; Expire bumps it so all outstanding tokens fail at once.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	gen    atomic.Int64
}

// NewIssuer returns an Issuer for secret. An empty secret gets a random key,
// which is fine for a single in-process backend.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{secret: key, ttl: ttl}
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a signed access token for the given subject.
func (i *Issuer) Issue(sub, name string) (string, error) {
	return i.IssueWithTTL(sub, name, i.ttl)
}

func (i *Issuer) IssueWithTTL(sub, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  sub,
		"name": name,
		"gen":  strconv.FormatInt(i.gen.Load(), 10),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(i.secret)
}

// Parse validates raw and returns its claims.
func (i *Issuer) Parse(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if _, ok := claims["exp"]; !ok {
		return nil, fmt.Errorf("token has no expiry")
	}
	gen, _ := claims["gen"].(string)
	if gen != strconv.FormatInt(i.gen.Load(), 10) {
		return nil, ErrRevoked
	}
	if sub, _ := claims.GetSubject(); sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// Expire invalidates every token issued so far.
func (i *Issuer) Expire() {
	i.gen.Add(1)
}
