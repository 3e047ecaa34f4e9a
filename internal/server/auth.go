package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/jakvbs/claude-mcp-go/internal/api"
)

// Argon2id parameters
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// TokenGuard enforces bearer-token auth on the HTTP API. The configured
// token is hashed at startup; only the hash stays in memory.
type TokenGuard struct {
	tokenHash string // Empty when auth is disabled
}

// NewTokenGuard creates a guard for the given token. An empty token
// disables authentication.
func NewTokenGuard(token string) (*TokenGuard, error) {
	g := &TokenGuard{}
	if token != "" {
		hash, err := hashToken(token)
		if err != nil {
			return nil, fmt.Errorf("hashing auth token: %w", err)
		}
		g.tokenHash = hash
	}
	return g, nil
}

// Enabled reports whether a token is configured.
func (g *TokenGuard) Enabled() bool {
	return g.tokenHash != ""
}

// Middleware rejects requests lacking a valid bearer token when auth is
// enabled.
func (g *TokenGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.tokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || !verifyToken(token, g.tokenHash) {
			api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Valid bearer token required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// hashToken creates an Argon2id hash of the token.
func hashToken(token string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	// Encode as: $argon2id$v=19$m=65536,t=1,p=4$<base64-salt>$<base64-hash>
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, b64Salt, b64Hash), nil
}

// verifyToken checks a token against an Argon2id hash.
func verifyToken(token, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	var memory, time uint32
	var threads uint8
	_, err := fmt.Sscanf(parts[2], "v=%d", &version)
	if err != nil {
		return false
	}
	_, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads)
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	// Compute hash with same parameters
	computedHash := argon2.IDKey([]byte(token), salt, time, memory, threads, uint32(len(expectedHash)))

	// Constant-time comparison
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}
