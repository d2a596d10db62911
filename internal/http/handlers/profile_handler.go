// Public profile endpoints: share-token lookups through the tiered cache,
// friendly-name links, and the legacy URL redirect.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fittrackpro/go-fitness-edge/internal/proxy"
	"github.com/fittrackpro/go-fitness-edge/internal/repo"
)

// notFoundHTML is served for unknown or revoked share links. Share links are
// opened in browsers by clients, not by API consumers, so the error page is
// human-readable.
const notFoundHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Profile Not Found</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
         display: flex; align-items: center; justify-content: center;
         min-height: 100vh; margin: 0; background: #f5f7fa; color: #2d3748; }
  .card { text-align: center; padding: 3rem; background: #fff;
          border-radius: 12px; box-shadow: 0 4px 12px rgba(0,0,0,.08); }
  h1 { margin: 0 0 .5rem; font-size: 1.5rem; }
  p { margin: 0; color: #718096; }
</style>
</head>
<body>
<div class="card">
  <h1>Profile Not Found</h1>
  <p>This share link is invalid or has expired. Ask your trainer for a new one.</p>
</div>
</body>
</html>`

// profilePageHTML embeds the profile snapshot into a self-contained page.
// Share links are opened in browsers, so this endpoint renders HTML, not
// JSON; the snapshot rides along for the client script to hydrate from.
const profilePageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>FitTrack Pro — Client Profile</title>
<link rel="manifest" href="/manifest.json">
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
         margin: 0; background: #f5f7fa; color: #2d3748; }
  header { background: #2b6cb0; color: #fff; padding: 1rem 1.5rem; }
  main { max-width: 720px; margin: 1.5rem auto; padding: 0 1rem; }
  .card { background: #fff; border-radius: 12px; padding: 1.5rem;
          margin-bottom: 1rem; box-shadow: 0 2px 8px rgba(0,0,0,.06); }
  pre { overflow-x: auto; font-size: .85rem; }
</style>
</head>
<body>
<header><strong>FitTrack Pro</strong></header>
<main>
  <div class="card" id="profile"><pre></pre></div>
</main>
<script>
  window.__PROFILE__ = %s;
  document.querySelector('#profile pre').textContent =
    JSON.stringify(window.__PROFILE__, null, 2);
</script>
</body>
</html>`

// ProfileHandler serves the public-profile surface.
type ProfileHandler struct {
	Resolver *proxy.Resolver
	DB       *gorm.DB
	MaxAge   time.Duration
}

// ByToken answers GET /profile/:token. The X-Cache header reports which tier
// served the snapshot; Cache-Control lets the browser hold it briefly so
// in-page refreshes stay local.
func (h *ProfileHandler) ByToken(c *gin.Context) {
	h.serve(c, c.Param("token"))
}

// ByClientName answers GET /client/:name, mapping a friendly name to its
// share token before resolving. Unknown names get the same HTML page as
// unknown tokens so the two cannot be distinguished by probing.
func (h *ProfileHandler) ByClientName(c *gin.Context) {
	token, err := repo.ResolveClientName(c.Request.Context(), h.DB, c.Param("name"))
	if errors.Is(err, repo.ErrNotFound) {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(notFoundHTML))
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	h.serve(c, token)
}

type shareLinkRequest struct {
	ClientName string `json:"client_name"`
	Token      string `json:"token"`
}

// CreateShareLink answers POST /api/admin/share-links, registering (or
// replacing) the friendly-name mapping for a share token.
func (h *ProfileHandler) CreateShareLink(c *gin.Context) {
	var req shareLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ClientName == "" || req.Token == "" {
		fail(c, http.StatusBadRequest, "client_name and token are required", "")
		return
	}
	if err := repo.PutShareLink(c.Request.Context(), h.DB, req.ClientName, req.Token); err != nil {
		fail(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"success": true, "url": "/client/" + req.ClientName})
}

// LegacyRedirect answers GET /public/profile/:token, the pre-gateway URL
// format still embedded in old shared links.
func (h *ProfileHandler) LegacyRedirect(c *gin.Context) {
	c.Redirect(http.StatusMovedPermanently, "/profile/"+c.Param("token"))
}

func (h *ProfileHandler) serve(c *gin.Context, token string) {
	if token == "" {
		fail(c, http.StatusBadRequest, "Share token required", "")
		return
	}

	doc, tier, err := h.Resolver.Resolve(c.Request.Context(), token)
	if errors.Is(err, proxy.ErrProfileNotFound) {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(notFoundHTML))
		return
	}
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "Backend unavailable", err.Error())
		return
	}

	// "</" must not appear verbatim inside the inline script.
	snapshot := strings.ReplaceAll(string(doc), "</", "<\\/")

	c.Header("X-Cache", tier)
	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.MaxAge.Seconds())))
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte(fmt.Sprintf(profilePageHTML, snapshot)))
}
