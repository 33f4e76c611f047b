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

type MessageService interface {
	Send(ctx context.Context, req model.SendMessageRequest) (*model.Message, error)
}

type MessageHandler struct {
	log *zap.Logger
	svc MessageService
}

func NewMessageHandler(log *zap.Logger, svc MessageService) *MessageHandler {
	return &MessageHandler{
		log: log,
		svc: svc,
	}
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	message, err := h.svc.Send(ctx, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyUserID) ||
			errors.Is(err, apperrors.ErrSamePeer) ||
			errors.Is(err, apperrors.ErrEmptyMessageText) {
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
		return
	}

	c.JSON(http.StatusCreated, ResponseWithData{
		Status: StatusSuccess,
		Data:   message,
	})
}
