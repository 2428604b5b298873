package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/protocol/sse"

	"github.com/lvyanru/hitl-chat/internal/domain"
	"github.com/lvyanru/hitl-chat/internal/domain/entity"
	"github.com/lvyanru/hitl-chat/internal/handler/dto"
)

// frameWriter the part of sse.Writer the relay uses
type frameWriter interface {
	WriteEvent(id, event string, data []byte) error
}

// ChatHandler chat endpoints
type ChatHandler struct {
	usecase domain.ChatUsecase
	logger  *slog.Logger
}

// NewChatHandler creates the chat handler
func NewChatHandler(usecase domain.ChatUsecase, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		usecase: usecase,
		logger:  logger,
	}
}

// bindChatRequest decodes and validates the body, writing a 400 on failure.
func (h *ChatHandler) bindChatRequest(c *app.RequestContext) (*entity.ChatRequest, bool) {
	var req dto.ChatRequest
	if err := c.BindJSON(&req); err != nil {
		h.logger.Warn("failed to bind chat request", "error", err)
		ErrorResponse(c, domain.NewInvalidInputError("request body must be a JSON object"))
		return nil, false
	}
	chatReq, err := req.ToEntity()
	if err != nil {
		h.logger.Warn("invalid chat request", "error", err)
		ErrorResponse(c, err)
		return nil, false
	}
	return chatReq, true
}

// Stream POST /api/chat
//
// Validation failures are answered with a 4xx JSON body before the stream
// opens. Afterwards every outcome, including errors, is an SSE frame.
func (h *ChatHandler) Stream(ctx context.Context, c *app.RequestContext) {
	chatReq, ok := h.bindChatRequest(c)
	if !ok {
		return
	}

	resolved := h.usecase.Resolve(chatReq)

	h.logger.Info("chat request received",
		"thread_id", resolved.ThreadID,
		"trigger", resolved.Trigger.Kind,
		"new_thread", resolved.IsNewThread)

	// cancelling ctx when the relay returns releases the producer
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := h.usecase.Stream(ctx, resolved)

	// status code must be set before the SSE writer takes over
	c.SetStatusCode(consts.StatusOK)
	writer := sse.NewWriter(c)
	defer writer.Close()

	h.relay(ctx, writer, resolved, events)
}

// relay writes the session frame (new threads only) and then one frame per
// event. Cancellation is checked before every frame; once seen, or once a
// write fails, a single finish(abort) frame is attempted and the remaining
// events are left undrained.
func (h *ChatHandler) relay(ctx context.Context, w frameWriter, resolved entity.ResolvedTrigger, events <-chan entity.Event) {
	write := func(ev entity.Event) error {
		data, err := sonic.Marshal(dto.ToStreamEvent(ev))
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
		}
		return w.WriteEvent("", "", data)
	}

	abort := func(reason string, err error) {
		h.logger.Info("chat stream aborted",
			"thread_id", resolved.ThreadID,
			"reason", reason,
			"error", err)
		_ = write(entity.FinishEvent(entity.FinishAbort))
	}

	if resolved.IsNewThread {
		if ctx.Err() != nil {
			abort("client disconnected", ctx.Err())
			return
		}
		if err := write(entity.SessionEvent(resolved.ThreadID)); err != nil {
			abort("write failed", err)
			return
		}
	}

	for {
		if ctx.Err() != nil {
			abort("client disconnected", ctx.Err())
			return
		}

		var (
			ev   entity.Event
			more bool
		)
		select {
		case <-ctx.Done():
			abort("client disconnected", ctx.Err())
			return
		case ev, more = <-events:
		}
		if !more {
			return
		}

		if err := write(ev); err != nil {
			abort("write failed", err)
			return
		}
		if ev.Terminal() {
			h.logger.Info("chat stream finished",
				"thread_id", resolved.ThreadID,
				"last_event", ev.Type)
			return
		}
	}
}

// Invoke POST /api/chat/invoke
func (h *ChatHandler) Invoke(ctx context.Context, c *app.RequestContext) {
	chatReq, ok := h.bindChatRequest(c)
	if !ok {
		return
	}

	result, err := h.usecase.Invoke(ctx, chatReq)
	if err != nil {
		h.logger.Error("invoke failed", "error", err)
		ErrorResponse(c, err)
		return
	}

	c.JSON(consts.StatusOK, dto.ToInvokeResponse(result))
}

// GetThread GET /api/chat/threads/:threadId
func (h *ChatHandler) GetThread(ctx context.Context, c *app.RequestContext) {
	threadID := c.Param("threadId")

	state, err := h.usecase.GetThread(ctx, threadID)
	if err != nil {
		if !domain.IsNotFound(err) {
			h.logger.Error("failed to get thread", "thread_id", threadID, "error", err)
		}
		ErrorResponse(c, err)
		return
	}

	SuccessResponse(c, dto.ToThreadResponse(threadID, state))
}

// DeleteThread DELETE /api/chat/threads/:threadId
func (h *ChatHandler) DeleteThread(ctx context.Context, c *app.RequestContext) {
	threadID := c.Param("threadId")

	if err := h.usecase.DeleteThread(ctx, threadID); err != nil {
		h.logger.Error("failed to delete thread", "thread_id", threadID, "error", err)
		ErrorResponse(c, err)
		return
	}

	NoContentResponse(c)
}
