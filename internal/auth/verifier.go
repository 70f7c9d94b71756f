package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"lumina_studio_go_backend/internal/models"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

const (
	jwksRefreshInterval = time.Hour
	// An unknown kid triggers at most one refetch per interval.
	jwksMissRefetchInterval = time.Minute
)

var errUnknownKey = errors.New("unable to find appropriate key")

// Verifier checks access tokens issued by the hosted auth service. Tokens are
// HS256 with the project secret, or RS256 with a key from the JWKS endpoint.
type Verifier struct {
	secret     []byte
	jwksURL    string
	httpClient *http.Client

	now func() time.Time

	// fetchMu serialises JWKS requests; mu guards the key set only, so known
	// keys verify while a fetch is in flight.
	fetchMu     sync.Mutex
	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	attemptedAt time.Time
}

func NewVerifier(secret, jwksURL string) *Verifier {
	return &Verifier{
		secret:     []byte(secret),
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

func (v *Verifier) Verify(tokenString string) (*models.User, error) {
	token, err := jwt.Parse(tokenString, v.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return &models.User{ID: id, Email: email, Role: role}, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.jwksURL == "" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		return v.publicKey(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

func (v *Verifier) publicKey(kid string) (*rsa.PublicKey, error) {
	if key, ok, settled := v.cachedKey(kid); settled {
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	}

	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()

	// Another request may have refreshed the set while this one waited.
	if key, ok, settled := v.cachedKey(kid); settled {
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	}

	now := v.now()
	v.mu.Lock()
	v.attemptedAt = now
	v.mu.Unlock()

	keys, err := v.fetchKeys()
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = now
	v.mu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, errUnknownKey
	}
	return key, nil
}

// cachedKey reports whether the cached set answers for kid without a fetch:
// either the key is known and fresh, or a fetch was attempted too recently to
// try again.
func (v *Verifier) cachedKey(kid string) (key *rsa.PublicKey, ok bool, settled bool) {
	now := v.now()
	v.mu.RLock()
	defer v.mu.RUnlock()

	key, ok = v.keys[kid]
	if ok && now.Sub(v.fetchedAt) < jwksRefreshInterval {
		return key, true, true
	}
	if !v.attemptedAt.IsZero() && now.Sub(v.attemptedAt) < jwksMissRefetchInterval {
		return key, ok, true
	}
	return nil, false, false
}

func (v *Verifier) fetchKeys() (map[string]*rsa.PublicKey, error) {
	resp, err := v.httpClient.Get(v.jwksURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kty string   `json:"kty"`
			Kid string   `json:"kid"`
			N   string   `json:"n"`
			E   string   `json:"e"`
			X5c []string `json:"x5c"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" {
			continue
		}
		var key *rsa.PublicKey
		if len(k.X5c) > 0 {
			cert := "-----BEGIN CERTIFICATE-----\n" + k.X5c[0] + "\n-----END CERTIFICATE-----"
			key, err = jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
		} else {
			key, err = rsaKeyFromModulus(k.N, k.E)
		}
		if err != nil {
			return nil, fmt.Errorf("bad jwks key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = key
	}
	return keys, nil
}

func rsaKeyFromModulus(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}
