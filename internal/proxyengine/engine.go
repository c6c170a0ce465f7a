// Package proxyengine is the glue component: for each request it resolves
// the target site, runs the rate limiter and SSRF guard, derives or
// validates the session, forwards the request to the origin, classifies
// the response, and applies the ad filter/rewriter/injector pipeline to
// HTML bodies before responding. A synchronous request/response cycle,
// shaped as a plain http.Handler rather than an httputil.ReverseProxy,
// since redirect interception and body rewriting need full control over
// the round trip.
package proxyengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"proxibase/internal/adfilter"
	"proxibase/internal/cookiejar"
	"proxibase/internal/models"
	"proxibase/internal/ratelimit"
	"proxibase/internal/rewriter"
	"proxibase/internal/security"
	"proxibase/internal/session"
	"proxibase/internal/siteconfig"
	"proxibase/internal/urlalgebra"
)

const sessionCookieName = "px_session_id"

// Config carries the knobs the standalone binary reads from its
// environment-sourced settings (see config.LoadSettings).
type Config struct {
	MaxResponseBytes    int64
	RequestTimeout      time.Duration
	EnableRateLimiting  bool
	TrustProxyHeaders   bool
	SessionCookieSecure bool
}

// Engine is the request-path state machine. It holds no per-request state;
// every field is either immutable after construction or internally
// synchronized, so a single Engine is safe for concurrent use across
// arbitrarily many in-flight requests.
type Engine struct {
	resolver *siteconfig.Resolver
	limiter  *ratelimit.Limiter
	codec    *session.Codec
	jar      cookiejar.Store
	client   *http.Client

	// dialLimiter, when non-nil, paces outbound origin fetches: Wait blocks
	// until a token is available before the engine dials the origin. This
	// is a process-wide ceiling on concurrent/sustained origin traffic, not
	// a per-site or per-client control.
	dialLimiter *rate.Limiter

	cfg    Config
	logger *slog.Logger
}

// New constructs an Engine. limiter may be nil to disable rate limiting
// outright; dialLimiter may be nil to leave outbound fetches unpaced.
func New(resolver *siteconfig.Resolver, limiter *ratelimit.Limiter, codec *session.Codec, jar cookiejar.Store, dialLimiter *rate.Limiter, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		resolver: resolver,
		limiter:  limiter,
		codec:    codec,
		jar:      jar,
		dialLimiter: dialLimiter,
		cfg:      cfg,
		logger:   logger,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	host := stripPort(r.Host)
	clientIP := e.clientIP(r)

	rec := requestLog{ClientIP: clientIP, MirrorHost: host, UserAgent: r.Header.Get("User-Agent")}

	ctx := r.Context()
	site, ok, err := e.resolver.Resolve(ctx, host)
	if err != nil || !ok {
		http.NotFound(w, r)
		rec.finish(e.logger, http.StatusNotFound, start, "no site configured for host")
		return
	}

	if e.cfg.EnableRateLimiting && e.limiter != nil {
		decision := e.limiter.Allow(clientIP)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(retryAfter))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, "Rate limit exceeded. Try again in %d seconds.", retryAfter)
			rec.finish(e.logger, http.StatusTooManyRequests, start, "rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}

	effective, err := e.resolver.Effective(ctx, site)
	if err != nil {
		http.Error(w, "configuration unavailable", http.StatusInternalServerError)
		rec.finish(e.logger, http.StatusInternalServerError, start, err.Error())
		return
	}

	var sid string
	var signedCookie string
	newSession := false
	if effective.SessionMode == models.SessionModeCookieJar {
		sid, signedCookie, newSession = e.deriveSession(r)
	}

	path := r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	originURL, ok := urlalgebra.BuildOriginURL(host, path, site)
	if !ok {
		http.NotFound(w, r)
		rec.finish(e.logger, http.StatusNotFound, start, "host is not a mirror of any configured site")
		return
	}
	rec.OriginURL = originURL

	if safe, reason := security.IsSafeOriginURL(originURL); !safe {
		http.Error(w, "Blocked: "+reason, http.StatusBadGateway)
		rec.finishWarn(e.logger, http.StatusBadGateway, start, "ssrf guard: "+reason)
		return
	}

	outReq, err := e.buildOutboundRequest(r, originURL, site)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadGateway)
		rec.finish(e.logger, http.StatusBadGateway, start, err.Error())
		return
	}

	originHost := outReq.URL.Hostname()
	tuple := cookiejar.Tuple{SiteID: site.ID, SessionID: sid, OriginHost: originHost}
	if sid != "" {
		if cookies := e.jar.Get(tuple); len(cookies) > 0 {
			outReq.Header.Set("Cookie", cookiejar.Render(cookies))
		}
	}

	if e.dialLimiter != nil {
		if err := e.dialLimiter.Wait(ctx); err != nil {
			http.Error(w, "request canceled", http.StatusBadGateway)
			rec.finish(e.logger, http.StatusBadGateway, start, "dial limiter: "+err.Error())
			return
		}
	}

	resp, err := e.client.Do(outReq)
	if err != nil {
		status := http.StatusBadGateway
		msg := "origin fetch failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "origin request timed out"
		}
		http.Error(w, msg, status)
		rec.finish(e.logger, status, start, err.Error())
		return
	}
	defer resp.Body.Close()

	if sid != "" {
		e.jar.Store(tuple, resp.Header.Values("Set-Cookie"))
	}

	if loc := resp.Header.Get("Location"); resp.StatusCode >= 300 && resp.StatusCode < 400 && loc != "" {
		e.respondRedirect(w, resp, originURL, site, effective, host, signedCookie, newSession)
		rec.finish(e.logger, resp.StatusCode, start, "redirect")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if !isMediaContentType(contentType) {
		limited := io.LimitReader(resp.Body, e.cfg.MaxResponseBytes+1)
		body, readErr := io.ReadAll(limited)
		if readErr != nil {
			http.Error(w, "error reading origin response", http.StatusBadGateway)
			rec.finish(e.logger, http.StatusBadGateway, start, readErr.Error())
			return
		}
		if int64(len(body)) > e.cfg.MaxResponseBytes {
			http.Error(w, fmt.Sprintf("Response too large: exceeds %d byte limit", e.cfg.MaxResponseBytes), http.StatusRequestEntityTooLarge)
			rec.finish(e.logger, http.StatusRequestEntityTooLarge, start, "oversize response")
			return
		}
		e.respondBody(w, resp, body, contentType, site, effective, host, originURL, signedCookie, newSession)
		rec.finish(e.logger, resp.StatusCode, start, "")
		return
	}

	// Media content: stream through unchanged.
	e.copyResponseHeaders(w, resp)
	e.maybeSetSessionCookie(w, newSession, signedCookie)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
	rec.finish(e.logger, resp.StatusCode, start, "")
}

func (e *Engine) respondRedirect(w http.ResponseWriter, resp *http.Response, originURL string, site *models.Site, effective models.EffectiveConfig, mirrorHost, signedCookie string, newSession bool) {
	location := resp.Header.Get("Location")
	absolute := location
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		if base, err := url.Parse(originURL); err == nil {
			if ref, err := url.Parse(location); err == nil {
				absolute = base.ResolveReference(ref).String()
			}
		}
	}
	mirrorLocation := urlalgebra.MapOriginURLToMirror(absolute, site, effective, mirrorHost)

	for _, h := range []string{"Cache-Control", "Expires"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.Header().Set("Location", mirrorLocation)
	e.maybeSetSessionCookie(w, newSession, signedCookie)
	w.WriteHeader(resp.StatusCode)
}

func (e *Engine) respondBody(w http.ResponseWriter, resp *http.Response, body []byte, contentType string, site *models.Site, effective models.EffectiveConfig, mirrorHost, originURL, signedCookie string, newSession bool) {
	if strings.HasPrefix(strings.ToLower(contentType), "text/html") {
		body = adfilter.Clean(body, effective)
		body = rewriter.Rewrite(body, rewriter.Context{
			MirrorHost:    mirrorHost,
			Site:          site,
			Effective:     effective,
			PageOriginURL: originURL,
		})
		body = adfilter.Inject(body, effective)
	}

	e.copyResponseHeaders(w, resp)
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	e.maybeSetSessionCookie(w, newSession, signedCookie)
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

func (e *Engine) copyResponseHeaders(w http.ResponseWriter, resp *http.Response) {
	for key, values := range resp.Header {
		if stripResponseHeader(key) {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
}

func (e *Engine) maybeSetSessionCookie(w http.ResponseWriter, newSession bool, signedCookie string) {
	if !newSession || signedCookie == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    signedCookie,
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   e.cfg.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// deriveSession returns the verified sid from an existing px_session_id
// cookie, or mints a fresh one. newSession is true only when a fresh sid
// was minted, signaling the caller to set the cookie on the response.
func (e *Engine) deriveSession(r *http.Request) (sid, signedCookie string, newSession bool) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		if verified, err := e.codec.Verify(c.Value); err == nil {
			return verified, c.Value, false
		}
	}
	newSid, signed, err := e.codec.NewSigned()
	if err != nil {
		return "", "", false
	}
	return newSid, signed, true
}

// buildOutboundRequest constructs the request sent to the origin: method
// and body copied from the client request, headers limited to
// forwardRequestHeaders, Host overridden to the origin host, and Referer
// mapped back to its origin equivalent (or dropped if it can't be mapped).
func (e *Engine) buildOutboundRequest(r *http.Request, originURL string, site *models.Site) (*http.Request, error) {
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, originURL, r.Body)
	if err != nil {
		return nil, err
	}

	for _, h := range forwardRequestHeaders {
		if v := r.Header.Get(h); v != "" {
			outReq.Header.Set(h, v)
		}
	}

	outReq.Host = outReq.URL.Hostname()

	if referer := r.Header.Get("Referer"); referer != "" {
		if rewritten, ok := rewriteRefererToOrigin(referer, site); ok {
			outReq.Header.Set("Referer", rewritten)
		}
	}

	return outReq, nil
}

// rewriteRefererToOrigin maps a client-supplied Referer (a mirror URL) back
// to the origin URL it actually names, treating the referer's host and
// path as a mirror request and running them through BuildOriginURL. It is
// best-effort: a referer that isn't a mirror URL of this site is dropped
// rather than forwarded unrewritten.
func rewriteRefererToOrigin(referer string, site *models.Site) (string, bool) {
	u, err := url.Parse(referer)
	if err != nil || u.Host == "" {
		return "", false
	}
	pathAndQuery := u.EscapedPath()
	if u.RawQuery != "" {
		pathAndQuery += "?" + u.RawQuery
	}
	return urlalgebra.BuildOriginURL(u.Host, pathAndQuery, site)
}

func (e *Engine) clientIP(r *http.Request) string {
	if e.cfg.TrustProxyHeaders {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if comma := strings.IndexByte(fwd, ','); comma >= 0 {
				return strings.TrimSpace(fwd[:comma])
			}
			return strings.TrimSpace(fwd)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			return host[:i]
		}
	}
	return host
}
