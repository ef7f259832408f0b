// Package handler implements the HTTP API endpoints.
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"videotrans/internal/dto"
	"videotrans/internal/queue"
	"videotrans/internal/response"
	"videotrans/internal/service"
	apperrors "videotrans/pkg/errors"
)

// Enqueuer is the durable submission path, satisfied by queue.Queue. Nil when
// no Redis queue is configured.
type Enqueuer interface {
	Enqueue(payload queue.ProcessVideoPayload) (string, error)
}

type Handler struct {
	svc *service.Service
	enq Enqueuer
	hub *Hub
}

func NewHandler(svc *service.Service, enq Enqueuer) *Handler {
	h := &Handler{svc: svc, enq: enq, hub: NewHub()}
	svc.Bus().Attach(h.hub)
	return h
}

// StartTask submits a new processing task. With durable=1 the submission goes
// through the Redis queue instead of directly into the scheduler.
func (h *Handler) StartTask(c *gin.Context) {
	var req dto.StartTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "参数错误 Invalid parameters", err))
		return
	}

	if c.Query("durable") == "1" {
		if h.enq == nil {
			response.ErrorResponse(c, apperrors.New(apperrors.CodeInvalidParams,
				"未配置持久化队列 Durable queue is not configured"))
			return
		}
		id, err := h.enq.Enqueue(queue.PayloadFromConfig(req.ToTaskConfig()))
		if err != nil {
			response.ErrorResponse(c, err)
			return
		}
		response.Success(c, dto.StartTaskResp{QueueId: id})
		return
	}

	t, err := h.svc.StartTask(req.ToTaskConfig())
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, dto.StartTaskResp{TaskId: t.Uuid})
}

// GetTask returns the current status of one task.
func (h *Handler) GetTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		response.ErrorResponse(c, apperrors.ErrInvalidParams)
		return
	}
	rec, err := h.svc.TaskStatus(taskID)
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, rec)
}

// StopTask requests a cooperative stop.
func (h *Handler) StopTask(c *gin.Context) {
	if err := h.svc.StopTask(c.Param("taskId")); err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, nil)
}

// GetHistory lists recent tasks.
func (h *Handler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := h.svc.History(limit)
	if err != nil {
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, recs)
}
