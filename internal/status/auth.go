package status

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig enables RS256 bearer-token checks on the non-liveness routes.
type AuthConfig struct {
	// PublicKey verifies token signatures. Required.
	PublicKey *rsa.PublicKey
	// Issuer, if non-empty, must equal the "iss" claim.
	Issuer string
	// Audience, if non-empty, must appear in the "aud" claim.
	Audience string
}

// LoadPublicKey reads a PEM-encoded RSA public key (PKCS#1 or PKIX) from path.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("status: cannot read public key %q: %w", path, err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("status: cannot parse public key %q: %w", path, err)
	}
	return key, nil
}

// requireJWT rejects requests without a valid bearer token with 401.
func requireJWT(cfg AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (any, error) { return cfg.PublicKey, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verify(parser, keyFunc, r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn("status: authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.Any("error", err),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			logger.Debug("status: authenticated request",
				slog.String("path", r.URL.Path),
				slog.String("subject", claims.Subject),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func verify(parser *jwt.Parser, keyFunc jwt.Keyfunc, header string) (*jwt.RegisteredClaims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, errors.New("missing or malformed Authorization header")
	}
	var claims jwt.RegisteredClaims
	if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
		return nil, err
	}
	return &claims, nil
}

func writeJSONError(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":%q}`+"\n", detail)
}
