// Uploads endpoints: a small object store for progress photos and documents.
// Objects are raw bytes plus a content type, addressed by caller-chosen keys.
// Bodies may be raw or, for JSON clients that cannot post binary, wrapped as
// {"data_base64": "...", "content_type": "..."}.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/fittrackpro/go-fitness-edge/internal/repo"
	"github.com/fittrackpro/go-fitness-edge/internal/utils"
)

// maxUploadBytes caps a single object.
const maxUploadBytes = 10 << 20

// UploadsHandler serves /api/uploads. Enabled gates the whole surface so
// deployments without storage provisioned return a clean error instead of
// filling the relational store.
type UploadsHandler struct {
	DB      *gorm.DB
	Enabled bool
}

func (h *UploadsHandler) gate(c *gin.Context) bool {
	if h.Enabled {
		return true
	}
	fail(c, http.StatusInternalServerError, "Uploads not configured", "")
	return false
}

// objectKey reads the key from the path, or from ?key= for clients posting
// to the collection root.
func objectKey(c *gin.Context) string {
	if key := c.Param("key"); key != "" {
		return key
	}
	return c.Query("key")
}

// List answers GET /api/uploads?prefix=&limit=.
func (h *UploadsHandler) List(c *gin.Context) {
	if !h.gate(c) {
		return
	}
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 100), 1, 1000)
	objects, err := repo.ListUploads(c.Request.Context(), h.DB, c.Query("prefix"), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"objects": objects})
}

// Get answers GET /api/uploads/:key, streaming the object with its stored
// content type.
func (h *UploadsHandler) Get(c *gin.Context) {
	if !h.gate(c) {
		return
	}
	key := c.Param("key")
	obj, err := repo.GetUpload(c.Request.Context(), h.DB, key)
	if errors.Is(err, repo.ErrNotFound) {
		fail(c, http.StatusNotFound, "Object not found", "")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, obj.Data)
}

type base64Upload struct {
	DataBase64  string `json:"data_base64"`
	ContentType string `json:"content_type"`
}

// Put answers POST and PUT /api/uploads/:key. A JSON body with data_base64
// is decoded; anything else is stored verbatim under the request's
// Content-Type.
func (h *UploadsHandler) Put(c *gin.Context) {
	if !h.gate(c) {
		return
	}
	key := objectKey(c)
	if key == "" {
		fail(c, http.StatusBadRequest, "Object key required", "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes+1))
	if err != nil {
		fail(c, http.StatusBadRequest, "Failed to read body", "")
		return
	}
	if len(body) > maxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, "Object too large", "")
		return
	}

	data := body
	contentType := c.ContentType()
	if strings.Contains(contentType, "application/json") {
		var wrapped base64Upload
		if jsonErr := json.Unmarshal(body, &wrapped); jsonErr == nil && wrapped.DataBase64 != "" {
			decoded, decErr := base64.StdEncoding.DecodeString(wrapped.DataBase64)
			if decErr != nil {
				fail(c, http.StatusBadRequest, "Invalid base64 payload", "")
				return
			}
			data = decoded
			if wrapped.ContentType != "" {
				contentType = wrapped.ContentType
			}
		}
	}

	if err := repo.PutUpload(c.Request.Context(), h.DB, key, contentType, data); err != nil {
		fail(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"success": true, "key": key, "size": len(data)})
}

// Delete answers DELETE /api/uploads/:key. Deleting a missing object
// succeeds; deleting without a key does not.
func (h *UploadsHandler) Delete(c *gin.Context) {
	if !h.gate(c) {
		return
	}
	key := objectKey(c)
	if key == "" {
		fail(c, http.StatusBadRequest, "Object key required", "")
		return
	}
	if err := repo.DeleteUpload(c.Request.Context(), h.DB, key); err != nil {
		fail(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"success": true})
}
