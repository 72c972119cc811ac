package checker

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySet is a domain's per-domain HS256 signing secret, loaded from a JWK
// set file containing exactly one key (spec.md §4.9, "the secret file is a
// JWK set with exactly one key"). Tokens carry the key's kid claim if the
// JWK supplies one.
type KeySet struct {
	secret []byte
	kid    string
}

// LoadKeySet parses a JWK-set document and extracts its single symmetric
// key.
func LoadKeySet(jwkJSON []byte) (*KeySet, error) {
	set, err := jwk.Parse(jwkJSON)
	if err != nil {
		return nil, fmt.Errorf("checker: parsing JWK set: %w", err)
	}
	if set.Len() != 1 {
		return nil, fmt.Errorf("checker: JWK set must contain exactly one key, got %d", set.Len())
	}
	key, ok := set.Key(0)
	if !ok {
		return nil, fmt.Errorf("checker: JWK set is empty")
	}
	var raw []byte
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("checker: JWK key is not a symmetric key: %w", err)
	}
	return &KeySet{secret: raw, kid: key.KeyID()}, nil
}

// Mint signs a short-lived token for username acting on behalf of system,
// expiring after ttl (spec.md §4.9, "a short-lived JWT... Claims include
// exp, username, system").
func (ks *KeySet) Mint(username, system string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"exp":      time.Now().Add(ttl).Unix(),
		"username": username,
		"system":   system,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if ks.kid != "" {
		tok.Header["kid"] = ks.kid
	}
	return tok.SignedString(ks.secret)
}

// Validate parses and verifies tokenStr against ks's secret, returning its
// username/system claims. A token signed by any method other than HS256,
// expired, or malformed is rejected.
func (ks *KeySet) Validate(tokenStr string) (Claims, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("checker: unexpected signing method %v", t.Header["alg"])
		}
		return ks.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("checker: invalid token: %w", err)
	}
	if !tok.Valid {
		return Claims{}, fmt.Errorf("checker: token failed verification")
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("checker: token claims malformed")
	}
	username, _ := mc["username"].(string)
	system, _ := mc["system"].(string)
	return Claims{Username: username, System: system}, nil
}
