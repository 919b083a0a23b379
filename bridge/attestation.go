package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenStage identifies why a token is being requested.
type TokenStage string

const (
	StageHandshake TokenStage = "handshake"

	tokenIssuer   = "sco-discord-bridge"
	tokenAudience = "control-plane"
)

// Token is a credential presented when dialing the control plane.
type Token struct {
	Value  string
	Expiry time.Time
}

type TokenRequest struct {
	Stage TokenStage
}

// TokenProvider issues dial credentials.
type TokenProvider interface {
	IssueToken(ctx context.Context, req TokenRequest) (Token, error)
}

// StaticToken always presents the same value.
type StaticToken string

func (s StaticToken) IssueToken(context.Context, TokenRequest) (Token, error) {
	if s == "" {
		return Token{}, errors.New("static token is empty")
	}
	return Token{Value: string(s)}, nil
}

// HMACTokenProvider signs short lived HS256 JWTs naming this server.
type HMACTokenProvider struct {
	secret     []byte
	serverName string
	ttl        time.Duration

	mu     sync.Mutex
	cached Token
}

// NewHMACTokenProvider builds a provider from an inline secret or a secret
// file. The file wins when both are set.
func NewHMACTokenProvider(opts AuthOptions, serverName string) (*HMACTokenProvider, error) {
	secret := strings.TrimSpace(opts.HMACSecret)
	if opts.HMACSecretFile != "" {
		data, err := os.ReadFile(opts.HMACSecretFile)
		if err != nil {
			return nil, fmt.Errorf("read hmac secret file: %w", err)
		}
		secret = string(bytes.TrimSpace(data))
	}
	if secret == "" {
		return nil, errors.New("hmac secret is required")
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &HMACTokenProvider{secret: []byte(secret), serverName: serverName, ttl: ttl}, nil
}

type dialClaims struct {
	Server string `json:"server"`
	jwt.RegisteredClaims
}

// IssueToken returns a cached token while more than half its lifetime remains.
func (h *HMACTokenProvider) IssueToken(ctx context.Context, req TokenRequest) (Token, error) {
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cached.Value != "" && now.Add(h.ttl/2).Before(h.cached.Expiry) {
		return h.cached, nil
	}

	exp := now.Add(h.ttl)
	claims := dialClaims{
		Server: h.serverName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   h.serverName,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	h.cached = Token{Value: signed, Expiry: exp}
	return h.cached, nil
}
