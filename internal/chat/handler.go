package chat

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fittrackpro/go-fitness-edge/internal/utils"
)

// maxFrameSize caps inbound WebSocket frames.
const maxFrameSize = 1 << 20

// Handler exposes rooms over REST and WebSocket. Routing under /chat/* is
// dispatched by hand: the room key is the first path segment and the
// operation is everything after it, so gin's tree never has to mix a
// parameterized segment with the upgrade path.
type Handler struct {
	Hub *Hub
	Log zerolog.Logger

	upgrader websocket.Upgrader
}

// NewHandler builds a chat handler. Cross-origin upgrades are allowed; the
// gateway is meant to be called from browser apps on other origins.
func NewHandler(hub *Hub, log zerolog.Logger) *Handler {
	return &Handler{
		Hub: hub,
		Log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the chat surface on the router.
func (h *Handler) Register(r gin.IRoutes) {
	r.Any("/chat/*path", h.dispatch)
}

func (h *Handler) dispatch(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	roomKey, rest, _ := strings.Cut(path, "/")
	if roomKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room ID required"})
		return
	}
	room := h.Hub.GetRoom(roomKey)

	if rest == "websocket" || (rest == "" && websocket.IsWebSocketUpgrade(c.Request)) {
		h.serveWS(c, room)
		return
	}

	method := c.Request.Method
	switch {
	case rest == "messages" && method == http.MethodGet:
		h.listMessages(c, room)
	case rest == "messages" && method == http.MethodPost:
		h.postMessage(c, room)
	case rest == "history" && method == http.MethodGet:
		h.history(c, room)
	case rest == "read" && method == http.MethodPut:
		h.markRead(c, room)
	case strings.HasPrefix(rest, "messages/") && method == http.MethodDelete:
		h.deleteMessage(c, room, strings.TrimPrefix(rest, "messages/"))
	case rest == "status" && method == http.MethodGet:
		h.status(c, room)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	}
}

func (h *Handler) listMessages(c *gin.Context, room *Room) {
	msgs, err := room.Messages()
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "total": len(msgs)})
}

func (h *Handler) history(c *gin.Context, room *Room) {
	// Absent or malformed cursors page from the present.
	before, err := strconv.ParseInt(c.Query("before"), 10, 64)
	if err != nil || before <= 0 {
		before = time.Now().UnixMilli()
	}
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 50), 1, 200)
	msgs, err := room.HistoryBefore(before, limit)
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type postMessageRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Content  string `json:"content"`
}

func (h *Handler) postMessage(c *gin.Context, room *Room) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	if req.UserID == "" || req.UserName == "" || strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId, userName and content are required"})
		return
	}
	msg, err := room.Append(req.UserID, req.UserName, req.Content)
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) deleteMessage(c *gin.Context, room *Room, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id"})
		return
	}
	if err := room.Delete(id); err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type markReadRequest struct {
	UserID            string `json:"userId"`
	LastReadTimestamp int64  `json:"lastReadTimestamp"`
}

func (h *Handler) markRead(c *gin.Context, room *Room) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.LastReadTimestamp <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and lastReadTimestamp are required"})
		return
	}
	changed, err := room.MarkRead(req.UserID, req.LastReadTimestamp)
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": changed})
}

func (h *Handler) status(c *gin.Context, room *Room) {
	st, err := room.Status()
	if err != nil {
		h.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) serveWS(c *gin.Context, room *Room) {
	userID := c.Query("userId")
	userName := c.Query("userName")
	if userID == "" || userName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and userName query parameters required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		h.Log.Debug().Err(err).Msg("chat: websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameSize)

	if err := room.Connect(userID, userName, conn, h.Hub.HistoryLimit()); err != nil {
		h.Log.Error().Err(err).Str("user_id", userID).Msg("chat: connect failed")
		conn.Close()
		return
	}
	defer func() {
		room.Disconnect(userID)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		room.HandleEvent(userID, userName, data)
	}
}

func (h *Handler) storageError(c *gin.Context, err error) {
	h.Log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("chat: storage failure")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "message": err.Error()})
}
