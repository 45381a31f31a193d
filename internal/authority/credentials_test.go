package authority

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "broker",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"id_token", `{"id_token":"a"}`, "a"},
		{"token", `{"token":"b"}`, "b"},
		{"access_token", `{"access_token":"c"}`, "c"},
		{"accessToken", `{"accessToken":"d"}`, "d"},
		{"jwt", `{"jwt":"e"}`, "e"},
		{"nested data", `{"data":{"token":"f"}}`, "f"},
		{"blank ignored", `{"id_token":"  ","token":"g"}`, "g"},
		{"missing", `{"user":"x"}`, ""},
		{"not json", `nope`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractToken([]byte(tt.body)))
		})
	}
}

func TestCredentialProvider_StaticTokenWins(t *testing.T) {
	p := NewCredentialProvider(CredentialConfig{StaticToken: " static ", Username: "u", LoginURL: "http://unused.invalid"})
	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", tok)
}

func TestCredentialProvider_TokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("\n  \"file-token\"\nignored\n"), 0o600))

	p := NewCredentialProvider(CredentialConfig{TokenFile: path})
	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "file-token", tok)
}

func TestCredentialProvider_RefreshSkipsRejectedFileToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("stale-file-token\n"), 0o600))

	var logins int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&logins, 1)
		_, _ = w.Write([]byte(`{"token":"fresh-login-token"}`))
	}))
	defer srv.Close()

	p := NewCredentialProvider(CredentialConfig{TokenFile: path, LoginURL: srv.URL, Username: "u"})
	ctx := context.Background()

	tok, err := p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stale-file-token", tok)

	// the authority answered 401 to the file token
	tok, err = p.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh-login-token", tok)

	for i := 0; i < 3; i++ {
		tok, err = p.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fresh-login-token", tok)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))

	// a rewritten file is trusted again
	require.NoError(t, os.WriteFile(path, []byte("rotated-file-token\n"), 0o600))
	tok, err = p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rotated-file-token", tok)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "añ", truncate("añoranza", 2))
	assert.Equal(t, "日本", truncate("日本語のエラー", 2))

	body := truncate(strings.Repeat("é", 400), 300)
	assert.True(t, utf8.ValidString(body))
	assert.Equal(t, 300, utf8.RuneCountInString(body))
}

func TestCredentialProvider_NoCredentials(t *testing.T) {
	p := NewCredentialProvider(CredentialConfig{})
	_, err := p.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestCredentialProvider_LoginCachesAndRefreshes(t *testing.T) {
	var logins int32
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&logins, 1)
		tok := signedToken(t, now.Add(time.Hour))
		if n > 1 {
			tok = signedToken(t, now.Add(2*time.Hour))
		}
		_, _ = w.Write([]byte(`{"id_token":"` + tok + `"}`))
	}))
	defer srv.Close()

	p := NewCredentialProvider(CredentialConfig{LoginURL: srv.URL, Username: "u", Password: "p"})
	first, err := p.Token(context.Background())
	require.NoError(t, err)
	again, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))

	refreshed, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, refreshed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
}

func TestCredentialProvider_ExpiredTokenTriggersLogin(t *testing.T) {
	var logins int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&logins, 1)
		_, _ = w.Write([]byte(`{"token":"` + signedToken(t, time.Now().Add(time.Hour)) + `"}`))
	}))
	defer srv.Close()

	p := NewCredentialProvider(CredentialConfig{LoginURL: srv.URL, Username: "u"})
	p.cached = signedToken(t, time.Now().Add(-time.Minute))

	_, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))
}

func TestCredentialProvider_ConcurrentRefreshSharesLogin(t *testing.T) {
	var logins int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&logins, 1)
		<-release
		_, _ = w.Write([]byte(`{"token":"opaque"}`))
	}))
	defer srv.Close()

	p := NewCredentialProvider(CredentialConfig{LoginURL: srv.URL, Username: "u"})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := p.Refresh(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "opaque", tok)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))
}

func TestCredentialProvider_LoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewCredentialProvider(CredentialConfig{LoginURL: srv.URL, Username: "u"})
	_, err := p.Token(context.Background())
	assert.True(t, IsUnauthorized(err))
}

func TestExpired_OpaqueTokenNeverExpires(t *testing.T) {
	p := NewCredentialProvider(CredentialConfig{})
	assert.False(t, p.expired("not-a-jwt"))
	assert.True(t, p.expired(signedToken(t, time.Now().Add(10*time.Second))))
	assert.False(t, p.expired(signedToken(t, time.Now().Add(time.Hour))))
}
