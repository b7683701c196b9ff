package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowmesh/reliable-commands/internal/bus"
	"github.com/flowmesh/reliable-commands/internal/cache"
	"github.com/flowmesh/reliable-commands/internal/config"
	"github.com/flowmesh/reliable-commands/internal/response"
	"github.com/flowmesh/reliable-commands/internal/store"
)

// Handler holds the collaborators CommandController needed in the original:
// the bus to accept commands, the response registry to wait on a reply, and
// the default reply queue/timeout knobs.
type Handler struct {
	bus       *bus.CommandBus
	responses *response.Registry
	cache     *cache.CommandCache
	commands  store.CommandStore
	dlq       store.DlqStore
	messaging config.MessagingConfig
	timeout   config.TimeoutConfig
	log       *zap.SugaredLogger
}

func RegisterHandlers(r *gin.Engine, h *Handler) {
	r.POST("/commands/:name", h.submitCommand)
	r.GET("/commands/:id", h.getCommandStatus)
	r.GET("/dlq", h.listDlq)
}

type submitRequest struct {
	BusinessKey string `json:"businessKey" binding:"required"`
	Payload     string `json:"payload" binding:"required"`
}

// submitCommand ports CommandController.submit: accept the command, then
// either return 202 immediately (async mode) or block up to syncWait for a
// reply before falling back to 202, matching the original's
// timeout-means-accepted contract.
func (h *Handler) submitCommand(c *gin.Context) {
	name := c.Param("name")
	idem := c.GetHeader("Idempotency-Key")
	if idem == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header required"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	replyTo := c.GetHeader("Reply-To")
	if replyTo == "" {
		replyTo = h.messaging.ReplyQueue
	}
	replyHeaders := map[string]string{"mode": "mq", "replyTo": replyTo}

	commandID, err := h.bus.Accept(c.Request.Context(), name, idem, req.BusinessKey, req.Payload, "{}", replyHeaders)
	if err != nil {
		switch err {
		case bus.ErrDuplicateIdempotencyKey:
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate idempotency key"})
			return
		case bus.ErrDuplicateBusinessKey:
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate business key"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("X-Command-Id", commandID.String())
	c.Header("X-Correlation-Id", commandID.String())

	if h.timeout.IsAsync() {
		c.JSON(http.StatusAccepted, gin.H{"message": "Command accepted, processing asynchronously"})
		return
	}

	waitCh := h.responses.Register(commandID, h.timeout.SyncWait)
	select {
	case result := <-waitCh:
		if result.Err != nil {
			if response.IsTimeout(result.Err) {
				c.JSON(http.StatusAccepted, gin.H{"message": "Command accepted, processing asynchronously"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": result.Err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", []byte(result.Payload))
	case <-c.Request.Context().Done():
		c.JSON(http.StatusAccepted, gin.H{"message": "Command accepted, processing asynchronously"})
	}
}

// getCommandStatus ports the teacher's GetBalance cache-then-fallback-to-db
// shape: check the cache first, and on a miss read the row from Postgres
// directly, warming the cache afterward if the status is terminal.
func (h *Handler) getCommandStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command id"})
		return
	}

	if view, ok := h.cache.Get(c.Request.Context(), id); ok {
		c.JSON(http.StatusOK, view)
		return
	}

	cmd, err := h.commands.Find(c.Request.Context(), nil, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cmd == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
		return
	}

	view := cache.CommandView{
		ID:       cmd.ID,
		Name:     cmd.Name,
		Status:   cmd.Status,
		Retries:  cmd.Retries,
		Reply:    cmd.Reply,
		Terminal: cache.IsTerminal(cmd.Status),
	}
	if cmd.LastError != nil {
		view.LastErr = *cmd.LastError
	}
	h.cache.Put(c.Request.Context(), view)
	c.JSON(http.StatusOK, view)
}

// listDlq surfaces permanently failed commands for operator triage.
func (h *Handler) listDlq(c *gin.Context) {
	rows, err := h.dlq.List(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}
