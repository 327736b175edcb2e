package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/VanDung-dev/HieraChain-Simulator/config"
)

// Authentication errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrAuthTokenInvalid  = errors.New("invalid auth message")
	ErrAuthTokenMismatch = errors.New("auth token mismatch")
)

// authMessageType is the Type of every handshake frame.
const authMessageType = "auth"

// Authenticator checks the token handshake on framed connections.
type Authenticator struct {
	config config.AuthConfig
	mu     sync.RWMutex
}

// NewAuthenticator creates an Authenticator. When auth is enabled without
// a token, a random one is generated; read it back with Token.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	if cfg.Enabled && cfg.Token == "" {
		cfg.Token = GenerateToken()
	}
	return &Authenticator{config: cfg}
}

// IsEnabled returns true if authentication is enabled.
func (a *Authenticator) IsEnabled() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Enabled
}

// Token returns the current auth token (for displaying to admin).
func (a *Authenticator) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Token
}

// ValidateToken checks the provided token in constant time.
func (a *Authenticator) ValidateToken(providedToken string) error {
	if !a.IsEnabled() {
		return nil
	}
	if providedToken == "" {
		return ErrAuthRequired
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if subtle.ConstantTimeCompare([]byte(a.config.Token), []byte(providedToken)) != 1 {
		return ErrAuthTokenMismatch
	}
	return nil
}

// Handshake reads the first frame of a connection as an AuthMessage and
// answers with an AuthResponse. It is a no-op when auth is disabled.
func (a *Authenticator) Handshake(rw io.ReadWriter) error {
	if !a.IsEnabled() {
		return nil
	}

	frame, err := ReadMessage(rw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	var msg AuthMessage
	authErr := json.Unmarshal(frame, &msg)
	if authErr != nil || msg.Type != authMessageType {
		authErr = ErrAuthTokenInvalid
	} else {
		authErr = a.ValidateToken(msg.Token)
	}

	resp := AuthResponse{Success: authErr == nil}
	if authErr != nil {
		resp.Error = authErr.Error()
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := WriteMessage(rw, out); err != nil {
		return err
	}
	if authErr != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, authErr)
	}
	return nil
}

// ClientHandshake sends token and waits for the server's verdict.
func ClientHandshake(rw io.ReadWriter, token string) error {
	out, err := json.Marshal(AuthMessage{Type: authMessageType, Token: token})
	if err != nil {
		return err
	}
	if err := WriteMessage(rw, out); err != nil {
		return err
	}

	frame, err := ReadMessage(rw)
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}
	var resp AuthResponse
	if err := json.Unmarshal(frame, &resp); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Error)
	}
	return nil
}

// GenerateToken generates a cryptographically secure random token.
func GenerateToken() string {
	bytes := make([]byte, 32) // 256 bits
	if _, err := rand.Read(bytes); err != nil {
		return "hierachain-sim-default-token-change-me"
	}
	return hex.EncodeToString(bytes)
}

// AuthMessage is the first frame a client sends when auth is enabled.
type AuthMessage struct {
	Type  string `json:"type"`  // Must be "auth"
	Token string `json:"token"` // The authentication token
}

// AuthResponse is sent back to the client after an auth attempt.
type AuthResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
