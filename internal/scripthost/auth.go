package scripthost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

type contextKey string

const claimsKey contextKey = "claims"

// Claims identifies the panel calling the host.
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// Auth validates bearer tokens: HS256 tokens signed with the shared
// secret, or OIDC ID tokens when a verifier is configured.
type Auth struct {
	secret   []byte
	verifier *oidc.IDTokenVerifier
}

// NewAuth creates an Auth for secret. An empty secret disables auth.
func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// EnableOIDC verifies tokens issued by issuerURL for clientID in addition
// to locally signed ones.
func (a *Auth) EnableOIDC(ctx context.Context, issuerURL, clientID string) error {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return fmt.Errorf("oidc provider init: %w", err)
	}
	a.verifier = provider.Verifier(&oidc.Config{ClientID: clientID})
	logging.Info("OIDC provider initialized",
		logging.String("issuer", issuerURL),
		logging.String("client_id", clientID))
	return nil
}

// Enabled reports whether requests must carry a token.
func (a *Auth) Enabled() bool {
	return len(a.secret) > 0 || a.verifier != nil
}

// IssueToken signs a token for client valid for ttl.
func (a *Auth) IssueToken(client string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("no signing secret configured")
	}
	now := time.Now()
	claims := &Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   client,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "studiokit-scripthost",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (a *Auth) validateOIDC(ctx context.Context, tokenStr string) (*Claims, error) {
	idToken, err := a.verifier.Verify(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	var std struct {
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&std); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}
	client := std.PreferredUsername
	if client == "" {
		client = std.Email
	}
	if client == "" {
		client = idToken.Subject
	}
	return &Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: idToken.Subject,
			Issuer:  idToken.Issuer,
		},
	}, nil
}

// Middleware rejects requests without a valid token. It passes everything
// through when auth is disabled.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		var (
			claims *Claims
			err    error
		)
		if len(a.secret) > 0 {
			claims, err = a.validateToken(tokenStr)
		}
		if claims == nil && a.verifier != nil {
			claims, err = a.validateOIDC(r.Context(), tokenStr)
		}
		if claims == nil {
			metrics.RecordAuthAttempt(false)
			msg := "invalid token"
			if err != nil {
				msg += ": " + err.Error()
			}
			sendError(w, http.StatusUnauthorized, msg)
			return
		}

		metrics.RecordAuthAttempt(true)
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims returns the claims stored by Middleware, or nil.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// EventSource cannot set headers.
	return r.URL.Query().Get("token")
}

func sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
