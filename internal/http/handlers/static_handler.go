// Static asset serving. The PWA manifest and service worker are compiled in
// so the app shell works even when the asset origin is down; everything else
// is fetched from the asset origin once and held in the KV edge cache.
package handlers

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fittrackpro/go-fitness-edge/internal/cache"
)

const manifestJSON = `{
  "name": "FitTrack Pro",
  "short_name": "FitTrack",
  "description": "Personal training, progress tracking, and coaching",
  "start_url": "/",
  "display": "standalone",
  "background_color": "#f5f7fa",
  "theme_color": "#2b6cb0",
  "icons": [
    { "src": "/icons/icon-192.png", "sizes": "192x192", "type": "image/png" },
    { "src": "/icons/icon-512.png", "sizes": "512x512", "type": "image/png" }
  ]
}`

// serviceWorkerJS is a network-first shell cache. Kept deliberately small;
// real offline behavior lives in the app bundle.
const serviceWorkerJS = `const CACHE = 'fittrack-shell-v2';

self.addEventListener('install', (event) => {
  event.waitUntil(caches.open(CACHE).then((c) => c.addAll(['/'])));
  self.skipWaiting();
});

self.addEventListener('activate', (event) => {
  event.waitUntil(
    caches.keys().then((keys) =>
      Promise.all(keys.filter((k) => k !== CACHE).map((k) => caches.delete(k)))
    )
  );
  self.clients.claim();
});

self.addEventListener('fetch', (event) => {
  if (event.request.method !== 'GET') return;
  event.respondWith(
    fetch(event.request)
      .then((resp) => {
        const copy = resp.clone();
        caches.open(CACHE).then((c) => c.put(event.request, copy));
        return resp;
      })
      .catch(() => caches.match(event.request))
  );
});`

// StaticHandler serves the embedded PWA files and the edge-cached asset
// pass-through.
type StaticHandler struct {
	KV       *cache.Store
	Origin   string // asset origin base URL; "" disables pass-through
	Client   *http.Client
	TTL      time.Duration
	SWMaxAge time.Duration
	Log      zerolog.Logger
}

// Manifest answers GET /manifest.json from the embedded copy.
func (h *StaticHandler) Manifest(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(int(h.TTL.Seconds())))
	c.Data(http.StatusOK, "application/manifest+json", []byte(manifestJSON))
}

// ServiceWorker answers GET /sw.js. The shorter max-age lets worker updates
// roll out within the hour.
func (h *StaticHandler) ServiceWorker(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(int(h.SWMaxAge.Seconds())))
	c.Data(http.StatusOK, "application/javascript", []byte(serviceWorkerJS))
}

// staticExts lists the file extensions eligible for edge caching. Anything
// else falling through to NoRoute is a 404, not an origin fetch.
var staticExts = map[string]struct{}{
	".html": {}, ".js": {}, ".css": {}, ".png": {}, ".jpg": {}, ".jpeg": {},
	".gif": {}, ".svg": {}, ".webp": {}, ".ico": {}, ".woff": {},
	".woff2": {}, ".ttf": {}, ".mp4": {}, ".webm": {},
}

func isStaticAsset(p string) bool {
	if p == "/" {
		return true
	}
	_, ok := staticExts[path.Ext(p)]
	return ok
}

// ServeCached attempts to satisfy a GET for a static asset, first from the
// KV cache and then from the asset origin. It reports whether it handled the
// request; a non-asset path, a miss-everywhere, or a disabled origin returns
// false so the caller can fall through to its 404.
func (h *StaticHandler) ServeCached(c *gin.Context) bool {
	if c.Request.Method != http.MethodGet || h.Origin == "" {
		return false
	}
	reqPath := c.Request.URL.Path
	if !isStaticAsset(reqPath) {
		return false
	}
	key := "static:" + reqPath
	maxAge := "public, max-age=" + strconv.Itoa(int(h.TTL.Seconds()))

	if raw, found, err := h.KV.Get(key); err == nil && found {
		c.Header("X-Cache", "HIT")
		c.Header("Cache-Control", maxAge)
		c.Data(http.StatusOK, contentTypeFor(reqPath), raw)
		return true
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, h.Origin+reqPath, nil)
	if err != nil {
		return false
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		h.Log.Warn().Err(err).Str("path", reqPath).Msg("static: origin fetch failed")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}

	if err := h.KV.Put(key, body, h.TTL); err != nil {
		h.Log.Debug().Err(err).Str("key", key).Msg("static: cache write failed")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFor(reqPath)
	}
	c.Header("X-Cache", "MISS")
	c.Header("Cache-Control", maxAge)
	c.Data(http.StatusOK, contentType, body)
	return true
}

// contentTypeFor derives a content type from the path extension. Cached
// entries store bytes only; the type is recomputable.
func contentTypeFor(p string) string {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
