package authority

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/prohmpiriya/ticket-broker/pkg/logger"
)

// tokenFields lists where login responses put the bearer token
var tokenFields = []string{"id_token", "token", "access_token", "accessToken", "jwt"}

// expirySkew refreshes tokens slightly before their exp claim
const expirySkew = 30 * time.Second

// TokenSource supplies bearer tokens for authority calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Refresh drops any cached token and obtains a new one
	Refresh(ctx context.Context) (string, error)
}

// CredentialConfig configures where tokens come from, checked in order:
// static token, token file, login
type CredentialConfig struct {
	StaticToken  string
	TokenFile    string
	LoginURL     string
	Username     string
	Password     string
	LoginTimeout time.Duration
}

// CredentialProvider resolves and caches the authority bearer token
type CredentialProvider struct {
	cfg   CredentialConfig
	http  *http.Client
	group singleflight.Group
	now   func() time.Time
	log   *logger.Logger

	mu     sync.RWMutex
	cached string
	// rejected is the token file content in use when Refresh was last
	// called. It is skipped until the file changes.
	rejected string
}

// NewCredentialProvider creates a new CredentialProvider
func NewCredentialProvider(cfg CredentialConfig) *CredentialProvider {
	timeout := cfg.LoginTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CredentialProvider{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
		log:  logger.Get().With(zap.String("component", "authority-credentials")),
	}
}

// Token returns a usable token, logging in when nothing valid is cached
func (p *CredentialProvider) Token(ctx context.Context) (string, error) {
	if t := strings.TrimSpace(p.cfg.StaticToken); t != "" {
		return t, nil
	}

	p.mu.RLock()
	cached, rejected := p.cached, p.rejected
	p.mu.RUnlock()

	if t := p.readTokenFile(); t != "" && t != rejected && !p.expired(t) {
		return t, nil
	}
	if cached != "" && !p.expired(cached) {
		return cached, nil
	}

	return p.login(ctx)
}

// Refresh forces a new login. Concurrent callers share one login request.
// The current token file content is not served again until it changes.
func (p *CredentialProvider) Refresh(ctx context.Context) (string, error) {
	fileToken := p.readTokenFile()
	p.mu.Lock()
	p.cached = ""
	if fileToken != "" {
		p.rejected = fileToken
	}
	p.mu.Unlock()
	return p.login(ctx)
}

func (p *CredentialProvider) login(ctx context.Context) (string, error) {
	if p.cfg.Username == "" || p.cfg.LoginURL == "" {
		return "", ErrNoCredentials
	}

	v, err, shared := p.group.Do("login", func() (interface{}, error) {
		token, err := p.doLogin(ctx)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		p.cached = token
		p.mu.Unlock()
		return token, nil
	})
	if err != nil {
		p.log.Warn("authority login failed", zap.Error(err))
		return "", err
	}
	if !shared {
		p.log.Info("authority token refreshed")
	}
	return v.(string), nil
}

func (p *CredentialProvider) doLogin(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"username":   p.cfg.Username,
		"password":   p.cfg.Password,
		"rememberMe": true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.LoginURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("authority: create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("authority: login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	token := extractToken(body)
	if token == "" {
		return "", fmt.Errorf("authority: login response carries no token")
	}
	return token, nil
}

// extractToken finds the token at the top level or under "data"
func extractToken(body []byte) string {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	if t := tokenFrom(doc); t != "" {
		return t
	}
	if data, ok := doc["data"].(map[string]interface{}); ok {
		return tokenFrom(data)
	}
	return ""
}

func tokenFrom(m map[string]interface{}) string {
	for _, f := range tokenFields {
		if s, ok := m[f].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// readTokenFile returns the first non-empty line with quotes stripped
func (p *CredentialProvider) readTokenFile() string {
	if p.cfg.TokenFile == "" {
		return ""
	}
	f, err := os.Open(p.cfg.TokenFile)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 64<<10)
	for sc.Scan() {
		line := strings.Trim(strings.TrimSpace(sc.Text()), `"'`)
		if line != "" {
			return line
		}
	}
	return ""
}

// expired reads the exp claim without verifying the signature. Tokens
// that are not JWTs, or carry no exp, never expire locally.
func (p *CredentialProvider) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !p.now().Add(expirySkew).Before(exp.Time)
}

// truncate clips s to n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

var _ TokenSource = (*CredentialProvider)(nil)
