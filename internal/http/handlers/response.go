// Package handlers implements the gateway's HTTP endpoints.
//
// This file defines the response helpers shared by every endpoint. The wire
// shapes are fixed by the deployed client apps and must not change:
//
//	HTTP/1.1 404 Not Found
//	{ "error": "Profile not found" }
//
//	HTTP/1.1 503 Service Unavailable
//	{ "error": "Backend unavailable", "message": "dial tcp ..." }
//
// Success bodies are endpoint-specific JSON, written via ok().
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fittrackpro/go-fitness-edge/internal/http/middleware"
)

// fail aborts the request with the standard error shape. The detail string is
// optional; when present it lands in the "message" field. Server-side errors
// (>= 500) are logged with the request-scoped logger.
func fail(c *gin.Context, status int, errMsg, detail string) {
	body := gin.H{"error": errMsg}
	if detail != "" {
		body["message"] = detail
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("error", errMsg).
			Str("detail", detail).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, body)
}

// Fail is the exported variant of fail(), for router-level fallbacks.
func Fail(c *gin.Context, status int, errMsg, detail string) { fail(c, status, errMsg, detail) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
