package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-client/config"
	"github.com/kendall-kelly/marketplace-client/logger"
	"go.uber.org/zap"
)

// Scopes a shell token may carry. Reading needs the first, sending,
// retrying and discarding messages or opening tickets need the second.
const (
	ScopeReadConversations  = "read:conversations"
	ScopeWriteConversations = "write:conversations"
)

// Gin context keys set once a shell token validates
const (
	SubjectKey = "auth_subject"
	ClaimsKey  = "validated_claims"
)

// ShellClaims are the non-registered claims read from a shell's access token
type ShellClaims struct {
	Scope string `json:"scope"`
}

// Validate accepts any scope set; RequireScope enforces them per route group
func (c ShellClaims) Validate(ctx context.Context) error {
	return nil
}

// HasScope reports whether the space separated scope claim lists want
func (c ShellClaims) HasScope(want string) bool {
	for _, scope := range strings.Fields(c.Scope) {
		if scope == want {
			return true
		}
	}
	return false
}

// EnsureValidToken guards the view server with Auth0 access tokens, for shells
// that run on a different host than the client core.
func EnsureValidToken(cfg *config.Config) (gin.HandlerFunc, error) {
	issuerURL, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse the issuer url: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &ShellClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up the jwt validator: %w", err)
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("rejected view server token", zap.String("path", r.URL.Path), zap.Error(err))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"INVALID_TOKEN","message":"The access token is not a valid JWT for this view server."}}`)); writeErr != nil {
			logger.Error("failed to write error response", zap.Error(writeErr))
		}
	}

	jwtGuard := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		passed := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			passed = true
			token := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			c.Set(SubjectKey, token.RegisteredClaims.Subject)
			c.Set(ClaimsKey, token)
			c.Request = r

			c.Next()
		}

		jwtGuard.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}, nil
}

// GetSubject returns the sub claim of the token that opened the request
func GetSubject(c *gin.Context) (string, error) {
	subject, exists := c.Get(SubjectKey)
	if !exists {
		return "", &AuthError{Code: "MISSING_SUBJECT", Message: "Token subject not found in context"}
	}

	subjectStr, ok := subject.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_SUBJECT", Message: "Token subject is not a string"}
	}

	return subjectStr, nil
}

// GetClaims returns the claims of the shell token that opened the request
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// RequireScope rejects shell tokens that lack scope. It must run after EnsureValidToken.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := GetClaims(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_CLAIMS",
					"message": "Could not retrieve token claims",
				},
			})
			c.Abort()
			return
		}

		shellClaims, ok := claims.CustomClaims.(*ShellClaims)
		if !ok || !shellClaims.HasScope(scope) {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INSUFFICIENT_SCOPE",
					"message": "Insufficient permissions to access this resource",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthError is returned by the context accessors when the guard did not run
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
