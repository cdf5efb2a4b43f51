// Package auth provides the credentials a client presents to the service.
// A credential is an opaque auth token plus the endpoint it was issued for;
// the token is sent verbatim in the authorization header and never parsed.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEndpointSuffix is appended to the token variable name by
// FromEnvironment to find the endpoint variable
const DefaultEndpointSuffix = "_ENDPOINT"

// Credentials identify the client to one service endpoint
type Credentials struct {
	// AuthToken is sent in the authorization header of every call
	AuthToken string `json:"-" yaml:"-"`

	// Endpoint is the host:port the token is valid for
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// CredentialProvider supplies credentials
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials returns fixed credentials after checking that both
// fields are set.
func StaticCredentials(authToken, endpoint string) (*Credentials, error) {
	c := &Credentials{AuthToken: strings.TrimSpace(authToken), Endpoint: strings.TrimSpace(endpoint)}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromEnvironment reads the token from the environment variable name and
// the endpoint from name+"_ENDPOINT".
func FromEnvironment(name string) (*Credentials, error) {
	if name == "" {
		return nil, NewAuthError(ErrInvalidCredentials, "environment variable name is empty")
	}
	token, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(token) == "" {
		return nil, NewAuthError(ErrTokenMissing, fmt.Sprintf("environment variable %s is not set", name)).
			WithDetail("variable", name)
	}
	endpointVar := name + DefaultEndpointSuffix
	endpoint := os.Getenv(endpointVar)
	if strings.TrimSpace(endpoint) == "" {
		return nil, NewAuthError(ErrEndpointMissing, fmt.Sprintf("environment variable %s is not set", endpointVar)).
			WithDetail("variable", endpointVar)
	}
	return StaticCredentials(token, endpoint)
}

// Validate checks that the token and endpoint are present
func (c Credentials) Validate() error {
	if c.AuthToken == "" {
		return NewAuthError(ErrTokenMissing, "auth token is empty")
	}
	if c.Endpoint == "" {
		return NewAuthError(ErrEndpointMissing, "endpoint is empty")
	}
	return nil
}

// Credentials implements CredentialProvider
func (c *Credentials) Credentials(context.Context) (Credentials, error) {
	return *c, nil
}

// Token implements TokenSource
func (c *Credentials) Token(context.Context) (string, error) {
	return c.AuthToken, nil
}

// String redacts the token
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Endpoint: %s, AuthToken: %s}", c.Endpoint, Redact(c.AuthToken))
}

// Redact keeps the first four characters of a token
func Redact(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", 8)
}

// AuthError represents a credential error
type AuthError struct {
	// Code is the error code (e.g., "token_missing")
	Code string

	// Message provides human-readable error details
	Message string

	// Details contains additional error context
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return e.Message
}

// Credential error codes
const (
	ErrInvalidCredentials = "invalid_credentials"
	ErrTokenMissing       = "token_missing"
	ErrEndpointMissing    = "endpoint_missing"
	ErrTokenExpired       = "token_expired"
)

// NewAuthError creates a new credential error.
func NewAuthError(code, message string) *AuthError {
	return &AuthError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WithDetail adds a detail to the error.
func (e *AuthError) WithDetail(key string, value interface{}) *AuthError {
	e.Details[key] = value
	return e
}
