package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
)

type EventApplier interface {
	ApplyMessageSent(ctx context.Context, event model.MessageSentEvent) (bool, error)
	ApplyMessagesRead(ctx context.Context, event model.MessagesReadEvent) (bool, error)
}

// EventHandler receives events delivered by the relay in direct transport
// mode. Status codes drive the relay's retry behavior: 2xx acknowledges the
// event, 4xx means it is permanently unprocessable, 5xx asks for a retry.
type EventHandler struct {
	log *zap.Logger
	svc EventApplier
}

func NewEventHandler(log *zap.Logger, svc EventApplier) *EventHandler {
	return &EventHandler{
		log: log,
		svc: svc,
	}
}

func (h *EventHandler) MessageSent(c *gin.Context) {
	ctx := c.Request.Context()

	var event model.MessageSentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	applied, err := h.svc.ApplyMessageSent(ctx, event)
	if err != nil {
		h.respondApplyError(c, err)
		return
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   model.AppliedResponse{Applied: applied},
	})
}

func (h *EventHandler) MessagesRead(c *gin.Context) {
	ctx := c.Request.Context()

	var event model.MessagesReadEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	applied, err := h.svc.ApplyMessagesRead(ctx, event)
	if err != nil {
		h.respondApplyError(c, err)
		return
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   model.AppliedResponse{Applied: applied},
	})
}

func (h *EventHandler) respondApplyError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrInvalidEventPayload) {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ResponseWithMessage{
		Status:  StatusErr,
		Message: err.Error(),
	})
}
