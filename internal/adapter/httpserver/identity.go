package httpserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"

	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
)

// AdminAPISubject is the subject id of callers authenticated by X-API-Key.
const AdminAPISubject = "admin-api-key"

// Argon2Params defines parameters for Argon2id key hashing.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLen:     16,
	KeyLen:      32,
}

// HashAPIKey encodes key as argon2id$iterations$memory$parallelism$salt$hash.
func HashAPIKey(key string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		params.Iterations,
		params.Memory,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyAPIKey checks key against an encoded argon2id hash in constant time.
func VerifyAPIKey(key, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	iters, err1 := parseUint32(parts[1])
	mem, err2 := parseUint32(parts[2])
	par, err3 := parseUint32(parts[3])
	if err1 != nil || err2 != nil || err3 != nil || par == 0 || par > math.MaxUint8 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}
	actual := argon2.IDKey([]byte(key), salt, iters, mem, uint8(par), uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

func parseUint32(s string) (uint32, error) {
	x, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return uint32(x), nil
}

// Claims is the bearer token payload.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type actorKey struct{}

// WithActor stores a verified actor on ctx.
func WithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor set by Identity, or the zero actor.
func ActorFrom(ctx context.Context) domain.Actor {
	a, _ := ctx.Value(actorKey{}).(domain.Actor)
	return a
}

// Identity resolves the caller in this order: admin API key, bearer JWT,
// then trusted X-User-* headers when the config allows them.
type Identity struct {
	jwtSecret    []byte
	issuer       string
	apiKeyHash   string
	trustHeaders bool
}

func NewIdentity(cfg config.Config) *Identity {
	return &Identity{
		jwtSecret:    []byte(cfg.AuthJWTSecret),
		issuer:       cfg.AuthJWTIssuer,
		apiKeyHash:   cfg.AdminAPIKeyHash,
		trustHeaders: cfg.TrustHeaderIdentity(),
	}
}

// Resolve authenticates r. Errors wrap ErrUnauthenticated.
func (id *Identity) Resolve(r *http.Request) (domain.Actor, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		if id.apiKeyHash == "" || !VerifyAPIKey(key, id.apiKeyHash) {
			return domain.Actor{}, fmt.Errorf("%w: invalid api key", domain.ErrUnauthenticated)
		}
		return domain.Actor{SubjectID: AdminAPISubject, Role: domain.RoleAdmin}, nil
	}

	if authz := r.Header.Get("Authorization"); authz != "" {
		if len(id.jwtSecret) == 0 {
			return domain.Actor{}, fmt.Errorf("%w: bearer tokens are not enabled", domain.ErrUnauthenticated)
		}
		token, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || token == "" {
			return domain.Actor{}, fmt.Errorf("%w: malformed Authorization header", domain.ErrUnauthenticated)
		}
		return id.parseToken(token)
	}

	if id.trustHeaders && r.Header.Get("X-User-Id") != "" {
		return domain.Actor{
			SubjectID: strings.TrimSpace(r.Header.Get("X-User-Id")),
			Role:      domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Role")))),
			Email:     strings.TrimSpace(r.Header.Get("X-User-Email")),
		}, nil
	}
	return domain.Actor{}, fmt.Errorf("%w: no credentials", domain.ErrUnauthenticated)
}

func (id *Identity) parseToken(raw string) (domain.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if id.issuer != "" {
		opts = append(opts, jwt.WithIssuer(id.issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return id.jwtSecret, nil }, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Actor{}, fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
		}
		return domain.Actor{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return domain.Actor{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	return domain.Actor{SubjectID: claims.Subject, Role: domain.Role(claims.Role), Email: claims.Email}, nil
}

// Middleware rejects unauthenticated requests and puts the actor on the context.
func (id *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := id.Resolve(r)
		if err == nil {
			err = actor.Validate()
		}
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		lg := LoggerFrom(r).With("subject_id", actor.SubjectID, "role", string(actor.Role))
		ctx := WithActor(r.Context(), actor)
		ctx = obsctx.ContextWithLogger(ctx, lg)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
