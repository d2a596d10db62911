package proxy

import (
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fittrackpro/go-fitness-edge/internal/cache"
)

// cacheablePaths are the read-heavy GET endpoints worth caching at the edge.
// Everything else passes straight through.
var cacheablePaths = []*regexp.Regexp{
	regexp.MustCompile(`^/api/clients/\d+/profile$`),
	regexp.MustCompile(`^/api/clients/\d+/measurements$`),
	regexp.MustCompile(`^/api/trainers/dashboard$`),
}

// hopHeaders are stripped in both directions per RFC 7230 §6.1.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// CacheKey derives the KV key for a proxied request. Query strings are part
// of the identity; two requests differing only in query never share an entry.
func CacheKey(path, rawQuery string) string {
	if rawQuery != "" {
		return "api:" + path + "?" + rawQuery
	}
	return "api:" + path
}

// Cacheable reports whether a request may be served from / written to the
// edge cache. Only GETs to the allow-listed paths qualify.
func Cacheable(method, path string) bool {
	if method != http.MethodGet {
		return false
	}
	for _, re := range cacheablePaths {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// APIProxy forwards /api/* traffic to the origin backend, caching allow-listed
// GET responses and degrading to known-stale cache entries when the origin is
// unreachable.
type APIProxy struct {
	KV     *cache.Store
	Origin string
	Client *http.Client
	TTL    time.Duration
	Log    zerolog.Logger

	// Background runs fire-and-forget cache writes; defaults to `go fn()`.
	Background func(fn func())
}

func (p *APIProxy) background(fn func()) {
	if p.Background != nil {
		p.Background(fn)
		return
	}
	go fn()
}

// Handle serves one proxied request. The X-Cache response header reports how
// it was satisfied: HIT, MISS, or STALE.
func (p *APIProxy) Handle(c *gin.Context) {
	path := c.Request.URL.Path
	cacheable := Cacheable(c.Request.Method, path)
	key := CacheKey(path, c.Request.URL.RawQuery)

	if cacheable {
		if raw, found, err := p.KV.Get(key); err == nil && found {
			c.Header("X-Cache", TagHit)
			c.Data(http.StatusOK, "application/json", raw)
			return
		} else if err != nil {
			p.Log.Warn().Err(err).Str("key", key).Msg("proxy: cache read failed")
		}
	}

	resp, err := p.forward(c)
	if err != nil {
		p.serveStale(c, key, cacheable, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.serveStale(c, key, cacheable, err)
		return
	}

	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	for name, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Header("X-Cache", TagMiss)
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)

	if cacheable && resp.StatusCode == http.StatusOK && isJSON(resp.Header.Get("Content-Type")) {
		stored := append([]byte(nil), body...)
		p.background(func() {
			if err := p.KV.Put(key, stored, p.TTL); err != nil {
				p.Log.Debug().Err(err).Str("key", key).Msg("proxy: cache write failed")
			}
		})
	}
}

func (p *APIProxy) forward(c *gin.Context) (*http.Response, error) {
	// The origin serves the same routes without the /api mount point.
	url := p.Origin + strings.TrimPrefix(c.Request.URL.Path, "/api")
	if q := c.Request.URL.RawQuery; q != "" {
		url += "?" + q
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
	if err != nil {
		return nil, err
	}

	req.Header = c.Request.Header.Clone()
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	if ip, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		req.Header.Set("X-Real-IP", ip)
		req.Header.Add("X-Forwarded-For", ip)
	}
	return p.Client.Do(req)
}

// serveStale answers from the shadow cache after an origin failure, or
// reports the backend unavailable when no stale copy exists.
func (p *APIProxy) serveStale(c *gin.Context, key string, cacheable bool, cause error) {
	p.Log.Error().Err(cause).Str("path", c.Request.URL.Path).Msg("proxy: origin unreachable")

	if cacheable {
		if raw, found, err := p.KV.GetStale(key); err == nil && found {
			c.Header("X-Cache", TagStale)
			c.Header("X-Backend-Error", cause.Error())
			c.Data(http.StatusOK, "application/json", raw)
			return
		}
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "Backend unavailable",
		"message": cause.Error(),
	})
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}
