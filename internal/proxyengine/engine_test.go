package proxyengine

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"proxibase/internal/cookiejar"
	"proxibase/internal/models"
	"proxibase/internal/ratelimit"
	"proxibase/internal/session"
	"proxibase/internal/siteconfig"
)

type memStore struct {
	sites  []*models.Site
	global *models.GlobalConfig
}

func (m *memStore) EnabledSites(ctx context.Context) ([]*models.Site, error) { return m.sites, nil }
func (m *memStore) GlobalConfig(ctx context.Context) (*models.GlobalConfig, error) {
	return m.global, nil
}

// newEngine wires an Engine whose origin requests ("https://source.invalid/...",
// per BuildOriginURL's hardcoded scheme) are transparently redirected to an
// in-process httptest server. source.invalid is RFC 2606 reserved and never
// resolves, so the SSRF guard's DNS-failure fallback lets it through;
// DialTLSContext then hands back a plain TCP connection to the real test
// server instead of negotiating TLS, since the test server speaks plain
// HTTP/1.1.
func newEngine(t *testing.T, originHandler http.Handler, site *models.Site) *Engine {
	origin := httptest.NewServer(originHandler)
	t.Cleanup(origin.Close)

	site.Source = "source.invalid"

	store := &memStore{sites: []*models.Site{site}}
	resolver := siteconfig.New(store)
	codec := session.New("test-secret")
	jar := cookiejar.NewMemStore()

	cfg := Config{
		MaxResponseBytes:   1 << 20,
		RequestTimeout:     5 * time.Second,
		EnableRateLimiting: false,
	}
	e := New(resolver, nil, codec, jar, nil, cfg, nil)
	e.client.Transport = &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return net.Dial(network, origin.Listener.Addr().String())
		},
	}
	return e
}

func TestEngineRewritesAnchorHref(t *testing.T) {
	site := &models.Site{ID: "s1", Mirror: "m.test", Enabled: true}
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="http://` + r.Host + `/x">link</a>`))
	})
	e := newEngine(t, origin, site)

	req := httptest.NewRequest("GET", "http://m.test/", nil)
	req.Host = "m.test"
	rw := httptest.NewRecorder()
	e.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d", rw.Code)
	}
	body := rw.Body.String()
	if !strings.Contains(body, `href="https://m.test/x"`) {
		t.Errorf("got %s", body)
	}
}

func TestEngineNoMatchingSiteReturns404(t *testing.T) {
	site := &models.Site{ID: "s1", Mirror: "m.test", Enabled: true}
	e := newEngine(t, http.NotFoundHandler(), site)

	req := httptest.NewRequest("GET", "http://other.test/", nil)
	req.Host = "other.test"
	rw := httptest.NewRecorder()
	e.ServeHTTP(rw, req)

	if rw.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rw.Code)
	}
}

func TestEngineStripsSetCookieAndAddsSessionCookie(t *testing.T) {
	cookieJarMode := models.SessionModeCookieJar
	site := &models.Site{ID: "s1", Mirror: "m.test", Enabled: true, SessionMode: &cookieJarMode}
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "a", Value: "1"})
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	e := newEngine(t, origin, site)

	req := httptest.NewRequest("GET", "http://m.test/", nil)
	req.Host = "m.test"
	rw := httptest.NewRecorder()
	e.ServeHTTP(rw, req)

	if rw.Header().Get("Set-Cookie") == "" {
		t.Fatal("expected a Set-Cookie header for the new session")
	}
	for _, c := range rw.Result().Cookies() {
		if c.Name == "a" {
			t.Errorf("origin cookie 'a' leaked to client: %v", c)
		}
	}
}

func TestEngineRedirectRewritesLocation(t *testing.T) {
	site := &models.Site{ID: "s1", Mirror: "m.test", Enabled: true}
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/login")
		w.WriteHeader(http.StatusFound)
	})
	e := newEngine(t, origin, site)

	req := httptest.NewRequest("GET", "http://m.test/", nil)
	req.Host = "m.test"
	rw := httptest.NewRecorder()
	e.ServeHTTP(rw, req)

	if rw.Code != http.StatusFound {
		t.Fatalf("status = %d", rw.Code)
	}
	if rw.Header().Get("Location") != "https://m.test/login" {
		t.Errorf("Location = %s", rw.Header().Get("Location"))
	}
}

func TestEngineOversizeResponseReturns413(t *testing.T) {
	site := &models.Site{ID: "s1", Mirror: "m.test", Enabled: true}
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write(make([]byte, 2048))
	})
	e := newEngine(t, origin, site)
	e.cfg.MaxResponseBytes = 1024

	req := httptest.NewRequest("GET", "http://m.test/", nil)
	req.Host = "m.test"
	rw := httptest.NewRecorder()
	e.ServeHTTP(rw, req)

	if rw.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rw.Code)
	}
}

func TestEngineRateLimited(t *testing.T) {
	site := &models.Site{ID: "s1", Mirror: "m.test", Enabled: true}
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	e := newEngine(t, origin, site)
	e.cfg.EnableRateLimiting = true
	e.limiter = ratelimit.New(1, time.Minute)

	req := httptest.NewRequest("GET", "http://m.test/", nil)
	req.Host = "m.test"
	req.RemoteAddr = "203.0.113.5:1234"

	rw1 := httptest.NewRecorder()
	e.ServeHTTP(rw1, req)
	if rw1.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rw1.Code)
	}

	rw2 := httptest.NewRecorder()
	e.ServeHTTP(rw2, req)
	if rw2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rw2.Code)
	}
	if rw2.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rw2.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %s, want 0", rw2.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestEngineSSRFDenialLogsWarning(t *testing.T) {
	site := &models.Site{ID: "s1", Mirror: "m.test", Source: "127.0.0.1", Enabled: true}
	store := &memStore{sites: []*models.Site{site}}
	resolver := siteconfig.New(store)
	codec := session.New("test-secret")
	jar := cookiejar.NewMemStore()

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	cfg := Config{MaxResponseBytes: 1 << 20, RequestTimeout: 5 * time.Second, EnableRateLimiting: false}
	e := New(resolver, nil, codec, jar, nil, cfg, logger)

	req := httptest.NewRequest("GET", "http://m.test/", nil)
	req.Host = "m.test"
	rw := httptest.NewRecorder()
	e.ServeHTTP(rw, req)

	if rw.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rw.Code)
	}
	logged := logBuf.String()
	if !strings.Contains(logged, "level=WARN") {
		t.Errorf("expected a WARN-level log record, got: %s", logged)
	}
	if strings.Contains(logged, "level=ERROR") {
		t.Errorf("SSRF denial must not log at ERROR despite its 502 status: %s", logged)
	}
}

func TestEngineServesWithDialLimiter(t *testing.T) {
	site := &models.Site{ID: "s1", Mirror: "m.test", Enabled: true}
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	e := newEngine(t, origin, site)
	e.dialLimiter = rate.NewLimiter(rate.Inf, 1)

	req := httptest.NewRequest("GET", "http://m.test/", nil)
	req.Host = "m.test"
	rw := httptest.NewRecorder()
	e.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d", rw.Code)
	}
}
