package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoIdentity is returned when a request carries no usable identity.
var ErrNoIdentity = errors.New("auth: no identity")

// Authenticator resolves the user behind an HTTP request.
type Authenticator interface {
	Subject(r *http.Request) (string, error)
}

type subjectKey struct{}

// WithSubject returns a copy of ctx carrying the authenticated subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the subject stored by RequireIdentity.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok && s != ""
}

// RequireIdentity rejects requests a cannot authenticate with 401 and stores
// the subject of the others in the request context.
func RequireIdentity(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, err := a.Subject(r)
			if err != nil {
				slog.Debug("auth: identity rejected", "remote", r.RemoteAddr, "err", err)
				unauthorized(w, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), sub)))
		})
	}
}

// JWTOptions configures a JWT authenticator. PublicKeyPEM takes precedence
// over HMACSecret.
type JWTOptions struct {
	HMACSecret   []byte
	PublicKeyPEM []byte
	Issuer       string
	Audience     string
}

// JWT authenticates bearer tokens from the Authorization header. The token
// subject becomes the user id.
type JWT struct {
	parser *jwt.Parser
	key    interface{}
}

// NewJWT builds a JWT authenticator. HMAC keys accept HS256/384/512, RSA keys
// accept RS256/384/512.
func NewJWT(opts JWTOptions) (*JWT, error) {
	var (
		key     interface{}
		methods []string
	)
	switch {
	case len(opts.PublicKeyPEM) > 0:
		pub, err := jwt.ParseRSAPublicKeyFromPEM(opts.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("auth: parse public key: %w", err)
		}
		key = pub
		methods = []string{"RS256", "RS384", "RS512"}
	case len(opts.HMACSecret) > 0:
		key = opts.HMACSecret
		methods = []string{"HS256", "HS384", "HS512"}
	default:
		return nil, errors.New("auth: jwt needs a public key or an hmac secret")
	}

	popts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		popts = append(popts, jwt.WithAudience(opts.Audience))
	}
	return &JWT{parser: jwt.NewParser(popts...), key: key}, nil
}

// LoadJWT reads the public key file if one is named and builds a JWT
// authenticator.
func LoadJWT(publicKeyFile string, opts JWTOptions) (*JWT, error) {
	if publicKeyFile != "" {
		pem, err := os.ReadFile(publicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("auth: read public key %q: %w", publicKeyFile, err)
		}
		opts.PublicKeyPEM = pem
	}
	return NewJWT(opts)
}

// Subject implements Authenticator.
func (j *JWT) Subject(r *http.Request) (string, error) {
	raw, ok := bearer(r)
	if !ok {
		return "", ErrNoIdentity
	}
	return j.Verify(raw)
}

// Verify parses and validates a raw token and returns its subject.
func (j *JWT) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, err := j.parser.ParseWithClaims(raw, claims, j.keyFunc); err != nil {
		return "", fmt.Errorf("auth: verify token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject: %w", ErrNoIdentity)
	}
	return claims.Subject, nil
}

// keyFunc needs no algorithm check of its own: WithValidMethods pins the
// family that matches the key.
func (j *JWT) keyFunc(*jwt.Token) (interface{}, error) {
	return j.key, nil
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

// HeaderIdentity trusts a plain header as the user id. Development only.
type HeaderIdentity struct {
	Header string
}

// Subject implements Authenticator.
func (h HeaderIdentity) Subject(r *http.Request) (string, error) {
	name := h.Header
	if name == "" {
		name = "X-User-ID"
	}
	if sub := strings.TrimSpace(r.Header.Get(name)); sub != "" {
		return sub, nil
	}
	return "", ErrNoIdentity
}
