package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
)

// SendInput: общее тело отправки для личных диалогов и групп.
type SendInput struct {
	ConversationID string   `json:"conversationId"`
	GroupID        string   `json:"groupId"`
	Text           string   `json:"text"`
	Attachments    []string `json:"attachments"`
	OrderID        string   `json:"orderId"`
}

func (in *SendInput) normalize() error {
	in.Text = strings.TrimSpace(in.Text)
	in.Attachments = uniqueIDs(in.Attachments)
	in.OrderID = strings.TrimSpace(in.OrderID)
	if in.Text == "" && len(in.Attachments) == 0 && in.OrderID == "" {
		return apperr.Validation("message must contain text, attachments or an order")
	}
	return nil
}

// snapshotOrder копирует заказ на момент отправки.
func snapshotOrder(ctx context.Context, orders OrderStore, orderID string) (*model.OrderSnapshot, error) {
	if orderID == "" {
		return nil, nil
	}
	o, err := orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeErr("message.GetOrder", err, "order not found")
	}
	snap := o.Snapshot()
	return &snap, nil
}

func newMessage(sender string, receivers []string, in SendInput, order *model.OrderSnapshot, now time.Time) *model.Message {
	return &model.Message{
		ID:          uuid.NewString(),
		SenderID:    sender,
		ReceiverIDs: receivers,
		Text:        in.Text,
		Attachments: in.Attachments,
		Order:       order,
		ReadBy:      []string{},
		DeliveredAt: &now,
		CreatedAt:   now,
	}
}

// MessageService: операции над отдельными сообщениями любого треда (диалога или группы).
type MessageService struct {
	convs    ConversationStore
	groups   GroupStore
	messages MessageStore
	pins     PinStore
	push     Pusher
	now      func() time.Time
}

func NewMessageService(convs ConversationStore, groups GroupStore, messages MessageStore, pins PinStore, push Pusher) *MessageService {
	return &MessageService{convs: convs, groups: groups, messages: messages, pins: pins, push: push, now: time.Now}
}

// authorizeThread проверяет доступ к диалогу или группе с данным id.
func (s *MessageService) authorizeThread(ctx context.Context, caller *model.User, threadID string) error {
	c, err := s.convs.GetByID(ctx, threadID)
	if err == nil {
		if c.Status == model.ConversationDeleted {
			return apperr.NotFound("conversation not found")
		}
		if !c.HasParticipant(caller.ID) && !caller.IsStaff() {
			return apperr.Forbidden("you are not a participant of this conversation")
		}
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal("message.GetConversation", err)
	}
	g, err := s.groups.GetByID(ctx, threadID)
	if err != nil {
		return storeErr("message.GetGroup", err, "conversation not found")
	}
	if !g.IsMember(caller.ID) {
		return apperr.Forbidden("you are not a member of this group")
	}
	return nil
}

func (s *MessageService) ListThread(ctx context.Context, caller *model.User, threadID string) ([]model.Message, error) {
	if err := s.authorizeThread(ctx, caller, threadID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByThread(ctx, threadID)
	if err != nil {
		return nil, apperr.Internal("message.ListThread", err)
	}
	return msgs, nil
}

// Delete: мягкое удаление отправителем или сотрудником с доступом к треду.
// Повторное удаление ничего не меняет.
func (s *MessageService) Delete(ctx context.Context, caller *model.User, messageID string) (*model.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeErr("message.Get", err, "message not found")
	}
	if msg.SenderID != caller.ID {
		if !caller.IsStaff() {
			return nil, apperr.Forbidden("only the sender can delete this message")
		}
		if err := s.authorizeThread(ctx, caller, msg.ThreadID()); err != nil {
			return nil, err
		}
	}
	if _, err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return nil, storeErr("message.SoftDelete", err, "message not found")
	}
	msg, err = s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeErr("message.Get", err, "message not found")
	}
	return msg, nil
}

// MarkRead отмечает одно сообщение прочитанным и сообщает отправителю (message-read).
func (s *MessageService) MarkRead(ctx context.Context, caller *model.User, messageID string) (*model.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeErr("message.Get", err, "message not found")
	}
	if !slices.Contains(msg.ReceiverIDs, caller.ID) {
		return nil, apperr.Forbidden("this message is not addressed to you")
	}
	if msg.IsDeleted || slices.Contains(msg.ReadBy, caller.ID) {
		return msg, nil
	}
	msg, err = s.messages.MarkRead(ctx, messageID, caller.ID, s.now().UTC())
	if err != nil {
		return nil, storeErr("message.MarkRead", err, "message not found")
	}
	s.push.Send(msg.SenderID, model.Event{
		Type:    model.EventMessageRead,
		Payload: model.MessageReadPayload{MessageID: msg.ID, UserID: caller.ID},
	})
	return msg, nil
}

func (s *MessageService) messageInThread(ctx context.Context, threadID, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return storeErr("message.Get", err, "message not found")
	}
	if msg.ThreadID() != threadID {
		return apperr.Validation("message does not belong to this conversation")
	}
	return nil
}

func (s *MessageService) Pin(ctx context.Context, caller *model.User, threadID, messageID string) error {
	if err := s.authorizeThread(ctx, caller, threadID); err != nil {
		return err
	}
	if err := s.messageInThread(ctx, threadID, messageID); err != nil {
		return err
	}
	if err := s.pins.Pin(ctx, threadID, messageID, caller.ID); err != nil {
		return apperr.Internal("message.Pin", err)
	}
	return nil
}

func (s *MessageService) Unpin(ctx context.Context, caller *model.User, threadID, messageID string) error {
	if err := s.authorizeThread(ctx, caller, threadID); err != nil {
		return err
	}
	if err := s.pins.Unpin(ctx, threadID, messageID); err != nil {
		return storeErr("message.Unpin", err, "message is not pinned")
	}
	return nil
}

func (s *MessageService) Pinned(ctx context.Context, caller *model.User, threadID string) ([]model.PinnedMessage, error) {
	if err := s.authorizeThread(ctx, caller, threadID); err != nil {
		return nil, err
	}
	pins, err := s.pins.GetPinned(ctx, threadID)
	if err != nil {
		return nil, apperr.Internal("message.Pinned", err)
	}
	return pins, nil
}
