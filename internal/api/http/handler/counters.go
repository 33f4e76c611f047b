package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"counters-back/internal/apperrors"
	"counters-back/internal/model"
)

type CounterService interface {
	GetCounters(ctx context.Context, userID uuid.UUID) (*model.CounterState, error)
	GetPeerCounter(ctx context.Context, userID, peerID uuid.UUID) (*model.PeerCounter, error)
	MarkRead(ctx context.Context, req model.MarkReadRequest) (*model.MarkReadResponse, error)
}

type CounterHandler struct {
	log *zap.Logger
	svc CounterService
}

func NewCounterHandler(log *zap.Logger, svc CounterService) *CounterHandler {
	return &CounterHandler{
		log: log,
		svc: svc,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type string `json:"type"` // "snapshot" | "update" | "error"
	Data any    `json:"data,omitempty"`
	Err  string `json:"error,omitempty"`
}

func (h *CounterHandler) GetCounters(c *gin.Context) {
	ctx := c.Request.Context()

	var uri model.UserIDPathParam
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	userID, err := uuid.Parse(uri.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	state, err := h.svc.GetCounters(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   state,
	})
}

func (h *CounterHandler) GetPeerCounter(c *gin.Context) {
	ctx := c.Request.Context()

	var uri model.PeerPathParam
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	userID, err := uuid.Parse(uri.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	peerID, err := uuid.Parse(uri.PeerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	counter, err := h.svc.GetPeerCounter(ctx, userID, peerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   counter,
	})
}

func (h *CounterHandler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()

	var req model.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ResponseWithMessage{
			Status:  StatusErr,
			Message: err.Error(),
		})
		return
	}

	resp, err := h.svc.MarkRead(ctx, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyUserID) || errors.Is(err, apperrors.ErrSamePeer) {
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

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   resp,
	})
}

// StreamCounters opens a WS and pushes the user's counter state whenever it
// changes, polling the store once a second.
func (h *CounterHandler) StreamCounters(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		_ = conn.WriteJSON(wsMessage{Type: "error", Err: "invalid user_id"})
		return
	}

	// keepalive
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastHash string

	send := func(msg wsMessage) bool {
		if err := conn.WriteJSON(msg); err != nil {
			h.log.Warn("ws write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, err := h.svc.GetCounters(ctx, userID)
			if err != nil {
				if !send(wsMessage{Type: "error", Err: err.Error()}) {
					return
				}
				continue
			}

			// hash the snapshot so unchanged state is not resent
			raw, _ := json.Marshal(state)
			sum := sha256.Sum256(raw)
			newHash := hex.EncodeToString(sum[:])

			if lastHash == "" {
				if !send(wsMessage{Type: "snapshot", Data: state}) {
					return
				}
				lastHash = newHash
			} else if newHash != lastHash {
				if !send(wsMessage{Type: "update", Data: state}) {
					return
				}
				lastHash = newHash
			}

			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}
