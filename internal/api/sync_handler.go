package api

import (
	"context"
	"errors"
	"net/http"

	"shipsync/internal/dto/resp"
	"shipsync/internal/model"
	"shipsync/internal/repository"
	"shipsync/internal/service"

	"github.com/gin-gonic/gin"
)

type SyncProvider interface {
	EnqueueOrderForSync(ctx context.Context, orderID string) (bool, error)
	TriggerDrain(ctx context.Context) (*service.BatchSummary, error)
	QueueStatus(ctx context.Context) (*repository.QueueStatus, error)
	ListOutcomes(ctx context.Context, orderID string) ([]model.FulfillmentOutcome, error)
	Health(ctx context.Context) error
}

type SyncHandler struct {
	service SyncProvider
}

func NewSyncHandler(service SyncProvider) *SyncHandler {
	return &SyncHandler{service: service}
}

// SyncOrder is the manual trigger. The default mode queues the order and
// drains immediately so the admin sees a per-item result; ?mode=enqueue
// returns as soon as the order is queued.
func (h *SyncHandler) SyncOrder(c *gin.Context) {
	orderID := c.Param("id")
	mode := c.DefaultQuery("mode", "drain")

	queued, err := h.service.EnqueueOrderForSync(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if mode == "enqueue" {
		c.JSON(http.StatusAccepted, resp.EnqueueResponse{OrderID: orderID, Queued: queued})
		return
	}

	summary, err := h.service.TriggerDrain(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.SyncResponse{OrderID: orderID, Queued: queued, Summary: summary})
}

func (h *SyncHandler) TriggerDrain(c *gin.Context) {
	summary, err := h.service.TriggerDrain(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *SyncHandler) QueueStatus(c *gin.Context) {
	status, err := h.service.QueueStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.QueueStatusResponse{
		Counts:               status.Counts,
		OldestPendingSeconds: status.OldestPendingAge.Seconds(),
	})
}

func (h *SyncHandler) ListOutcomes(c *gin.Context) {
	outcomes, err := h.service.ListOutcomes(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]resp.OutcomeItem, 0, len(outcomes))
	for _, o := range outcomes {
		items = append(items, resp.OutcomeItem{
			ID:            o.ID,
			Result:        o.Result,
			FulfillmentID: o.FulfillmentID,
			Reason:        o.Reason,
			Attempts:      o.Attempts,
			FulfilledAt:   o.FulfilledAt,
			CreatedAt:     o.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (h *SyncHandler) HealthCheck(c *gin.Context) {
	if err := h.service.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
