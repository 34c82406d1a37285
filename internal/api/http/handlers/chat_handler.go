package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-service/internal/api/dto"
	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/service"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// ChatHandler exposes chat history and message endpoints. Live delivery happens
// over the websocket server; messages sent here are relayed the same way.
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler constructs handler.
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{service: chatService}
}

// ListHistory GET /chat/history.
func (h *ChatHandler) ListHistory(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	summaries, err := h.service.ListHistory(c.UserContext(), p.ID)
	if err != nil {
		return err
	}
	items := make([]dto.ChatHistoryResponse, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, dto.NewChatHistoryResponse(s, h.service.RoomID(s.History.OperatorID, s.History.UserID)))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateHistory POST /chat/history.
func (h *ChatHandler) CreateHistory(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateHistoryRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	operatorID, userID := req.CounterpartID, p.ID
	if p.IsModerator() {
		operatorID, userID = p.ID, req.CounterpartID
	}
	history, err := h.service.CreateHistory(c.UserContext(), operatorID, userID)
	if err != nil {
		return err
	}
	summary := domain.ChatSummary{History: *history, CounterpartID: req.CounterpartID, CounterpartIsOps: !p.IsModerator()}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewChatHistoryResponse(summary, h.service.RoomID(operatorID, userID))})
}

// MarkRead POST /chat/history/:userId/read. Only the operator side reads a history.
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if !p.IsModerator() {
		return apperrors.NewForbidden("moderator required")
	}
	if err := h.service.MarkRead(c.UserContext(), p.ID, c.Params("userId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListMessages GET /chat/messages/:peerId?limit=50.
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	limit := parseInt(c.Query("limit"), 50)
	msgs, err := h.service.ListMessages(c.UserContext(), p.ID, c.Params("peerId"), limit)
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, dto.NewMessageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SendMessage POST /chat/messages.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	msg, err := h.service.SendMessage(c.UserContext(), service.SendMessageInput{
		SenderID:   p.ID,
		ReceiverID: req.ReceiverID,
		SentBy:     p.SentBy(),
		Body:       req.Body,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}
