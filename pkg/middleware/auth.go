package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// AuthKey is the registry key set by the authentication middleware. It holds the
// authenticated user for the user-returning variants and true otherwise.
const AuthKey = "auth"

// Unauthorized is the result sent when authentication fails.
func Unauthorized() common.Result {
	return common.Error(http.StatusUnauthorized, "unauthorized")
}

// AuthProvider defines an interface for authentication providers.
// The framework includes BasicAuthProvider, BearerTokenProvider and APIKeyProvider.
type AuthProvider interface {
	// Authenticate reports whether the request carries valid credentials.
	Authenticate(r *http.Request) bool
}

// BasicAuthProvider provides HTTP Basic Authentication against a fixed set of credentials.
type BasicAuthProvider struct {
	Credentials map[string]string // username -> password
}

// Authenticate validates the Basic credentials of r.
func (p *BasicAuthProvider) Authenticate(r *http.Request) bool {
	username, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	expected, exists := p.Credentials[username]
	return exists && subtle.ConstantTimeCompare([]byte(password), []byte(expected)) == 1
}

// BearerTokenProvider provides Bearer Token Authentication.
// Validator, when set, takes precedence over ValidTokens.
type BearerTokenProvider struct {
	ValidTokens map[string]bool
	Validator   func(token string) bool
}

// Authenticate validates the bearer token of r.
func (p *BearerTokenProvider) Authenticate(r *http.Request) bool {
	token, ok := bearerToken(r)
	if !ok {
		return false
	}
	if p.Validator != nil {
		return p.Validator(token)
	}
	return p.ValidTokens[token]
}

// APIKeyProvider provides API Key Authentication from a header or a query parameter.
type APIKeyProvider struct {
	ValidKeys map[string]bool
	Header    string // header name (e.g., "X-API-Key")
	Query     string // query parameter name (e.g., "api_key")
}

// Authenticate validates the API key of r.
func (p *APIKeyProvider) Authenticate(r *http.Request) bool {
	key := apiKey(r, p.Header, p.Query)
	return key != "" && p.ValidKeys[key]
}

func bearerToken(r *http.Request) (string, bool) {
	return strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func apiKey(r *http.Request, header, query string) string {
	if header != "" {
		if key := r.Header.Get(header); key != "" {
			return key
		}
	}
	if query != "" {
		return r.URL.Query().Get(query)
	}
	return ""
}

// Authentication short-circuits unauthenticated requests with a 401
// {status, error: "unauthorized"} payload. Authenticated requests get AuthKey set to true.
func Authentication(provider AuthProvider, logger *zap.Logger) Middleware {
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		if !provider.Authenticate(c.Request()) {
			logger.Warn("Authentication failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("remote_addr", c.Request().RemoteAddr),
			)
			return Unauthorized()
		}
		c.Values().Set(AuthKey, true)
		return next()
	})
}

// AuthenticationFunc is Authentication with a plain function in place of a provider.
func AuthenticationFunc(authFunc func(*common.Context) bool) Middleware {
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		if !authFunc(c) {
			return Unauthorized()
		}
		c.Values().Set(AuthKey, true)
		return next()
	})
}

// NewBasicAuthMiddleware creates a middleware that uses HTTP Basic Authentication.
func NewBasicAuthMiddleware(credentials map[string]string, logger *zap.Logger) Middleware {
	return Authentication(&BasicAuthProvider{Credentials: credentials}, logger)
}

// NewBearerTokenMiddleware creates a middleware that uses Bearer Token Authentication.
func NewBearerTokenMiddleware(validTokens map[string]bool, logger *zap.Logger) Middleware {
	return Authentication(&BearerTokenProvider{ValidTokens: validTokens}, logger)
}

// NewAPIKeyMiddleware creates a middleware that uses API Key Authentication.
func NewAPIKeyMiddleware(validKeys map[string]bool, header, query string, logger *zap.Logger) Middleware {
	return Authentication(&APIKeyProvider{ValidKeys: validKeys, Header: header, Query: query}, logger)
}

// UserAuthProvider is an authentication provider that resolves the caller to a user.
type UserAuthProvider[T any] interface {
	// AuthenticateUser returns the user behind the request's credentials, or an error.
	AuthenticateUser(r *http.Request) (*T, error)
}

// BearerTokenUserAuthProvider resolves a bearer token to a user.
type BearerTokenUserAuthProvider[T any] struct {
	GetUserFunc func(token string) (*T, error)
}

// AuthenticateUser resolves the bearer token of r.
func (p *BearerTokenUserAuthProvider[T]) AuthenticateUser(r *http.Request) (*T, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, errors.New("no bearer token")
	}
	return p.GetUserFunc(token)
}

// APIKeyUserAuthProvider resolves an API key to a user.
type APIKeyUserAuthProvider[T any] struct {
	GetUserFunc func(key string) (*T, error)
	Header      string
	Query       string
}

// AuthenticateUser resolves the API key of r.
func (p *APIKeyUserAuthProvider[T]) AuthenticateUser(r *http.Request) (*T, error) {
	key := apiKey(r, p.Header, p.Query)
	if key == "" {
		return nil, errors.New("no API key found")
	}
	return p.GetUserFunc(key)
}

// AuthenticationWithUser authenticates with a user-returning provider and stores the
// user under AuthKey. Failures short-circuit with the 401 payload.
func AuthenticationWithUser[T any](provider UserAuthProvider[T], logger *zap.Logger) Middleware {
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		user, err := provider.AuthenticateUser(c.Request())
		if err != nil || user == nil {
			logger.Warn("Authentication failed",
				zap.Error(err),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("remote_addr", c.Request().RemoteAddr),
			)
			return Unauthorized()
		}
		c.Values().Set(AuthKey, user)
		return next()
	})
}

// GetUser returns the user stored by AuthenticationWithUser, or nil.
func GetUser[T any](c *common.Context) *T {
	user, _ := common.Value[*T](c.Values(), AuthKey)
	return user
}

// RequireKey lets a request through only when an earlier middleware stored key in the
// request registry. Otherwise it returns the 401 payload and the handler never runs.
func RequireKey(key string) Middleware {
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		if !c.Values().Has(key) {
			return Unauthorized()
		}
		return next()
	})
}
