package handlers

import (
	"net/http"
	"time"

	"github.com/geocoder89/jobqueue/internal/commands"
	"github.com/geocoder89/jobqueue/internal/queue"
	"github.com/gin-gonic/gin"
)

// QueuesHandler is the operator console over the queue runtime: list
// registered queues, submit demo commands, force-cancel by tracking
// id. Grounded on the teacher's admin_jobs.go/jobs.go handlers,
// generalized from a single JobType enum to the generic registry
// façade (internal/queue.Registry).
type QueuesHandler struct {
	registry *queue.Registry
}

func NewQueuesHandler(registry *queue.Registry) *QueuesHandler {
	return &QueuesHandler{registry: registry}
}

// ListQueues reports every registered command type's queue id and
// live configuration. There is no teacher equivalent for this route —
// it is a supplemented feature (spec_full §12).
func (h *QueuesHandler) ListQueues(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"queues":              h.registry.Inspect(),
		"inFlightExecutions": h.registry.Cancellations().Len(),
	})
}

// CancelJobRequest is the body for POST /queues/:commandType/cancel.
type CancelJobRequest struct {
	TrackingID string `json:"trackingId" binding:"required"`
}

// notifyCommandType and publishEventCommandType name the two demo
// command types this console can address directly by URL segment. A
// richer implementation would look these up from a type registry, but
// spec §9's generics constraint means Go cannot erase T at a call site
// without this kind of explicit type switch somewhere in the stack.
const (
	notifyCommandType       = "notify"
	publishEventCommandType = "publish-event"
)

// EnqueueNotificationRequest is the body for
// POST /queues/notify/enqueue.
type EnqueueNotificationRequest struct {
	Recipient    string `json:"recipient" binding:"required,email"`
	Subject      string `json:"subject" binding:"required"`
	Body         string `json:"body"`
	ExecuteAfter string `json:"executeAfter,omitempty"`
}

func (h *QueuesHandler) EnqueueNotification(ctx *gin.Context) {
	var req EnqueueNotificationRequest
	if !BindJSON(ctx, &req) {
		return
	}

	executeAfter, ok := parseOptionalTime(ctx, req.ExecuteAfter)
	if !ok {
		return
	}

	trackingID, err := queue.Enqueue(h.registry, ctx.Request.Context(), commands.SendNotificationCommand{
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
	}, executeAfter, time.Time{})
	if err != nil {
		RespondInternal(ctx, err.Error())
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"trackingId": trackingID})
}

// EnqueuePublishEventRequest is the body for
// POST /queues/publish-event/enqueue.
type EnqueuePublishEventRequest struct {
	EventID     string `json:"eventId" binding:"required"`
	RequestedBy string `json:"requestedBy"`
}

func (h *QueuesHandler) EnqueuePublishEvent(ctx *gin.Context) {
	var req EnqueuePublishEventRequest
	if !BindJSON(ctx, &req) {
		return
	}

	trackingID, err := queue.Enqueue(h.registry, ctx.Request.Context(), commands.PublishEventCommand{
		EventID:     req.EventID,
		RequestedBy: req.RequestedBy,
	}, time.Time{}, time.Time{})
	if err != nil {
		RespondInternal(ctx, err.Error())
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"trackingId": trackingID})
}

// CancelByCommandType force-cancels a tracking id on the queue for the
// command type named in the URL, generalizing the teacher's admin job
// retry endpoints to the new façade's Cancel[T].
func (h *QueuesHandler) CancelByCommandType(ctx *gin.Context) {
	var req CancelJobRequest
	if !BindJSON(ctx, &req) {
		return
	}

	var err error
	switch ctx.Param("commandType") {
	case notifyCommandType:
		err = queue.Cancel[commands.SendNotificationCommand](h.registry, ctx.Request.Context(), req.TrackingID)
	case publishEventCommandType:
		err = queue.Cancel[commands.PublishEventCommand](h.registry, ctx.Request.Context(), req.TrackingID)
	default:
		RespondNotFound(ctx, "unknown command type")
		return
	}

	if err != nil {
		RespondInternal(ctx, err.Error())
		return
	}

	ctx.Status(http.StatusNoContent)
}

func parseOptionalTime(ctx *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		RespondBadRequest(ctx, "executeAfter must be RFC3339", nil)
		return time.Time{}, false
	}
	return t, true
}
