// Exercise search endpoints: the public lexical search and the admin
// reindexing hook.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fittrackpro/go-fitness-edge/internal/search"
	"github.com/fittrackpro/go-fitness-edge/internal/utils"
)

// SearchHandler serves the exercise index.
type SearchHandler struct {
	Index *search.Index
}

// Exercises answers GET /api/exercises/semantic?q=&limit=.
func (h *SearchHandler) Exercises(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		fail(c, http.StatusBadRequest, "q is required", "")
		return
	}
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 20), 1, 100)

	matches := h.Index.Search(q, limit)
	if matches == nil {
		matches = []search.Match{}
	}
	ok(c, http.StatusOK, gin.H{"exercises": matches, "count": len(matches)})
}

type reindexRequest struct {
	Exercises []search.Exercise `json:"exercises"`
}

// Reindex answers POST /api/admin/index-exercises, atomically replacing the
// index with the posted records.
func (h *SearchHandler) Reindex(c *gin.Context) {
	var req reindexRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Exercises == nil {
		fail(c, http.StatusBadRequest, "exercises array required", "")
		return
	}
	n := h.Index.Swap(req.Exercises)
	ok(c, http.StatusOK, gin.H{"success": true, "indexed": n})
}
