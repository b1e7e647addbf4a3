package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
	"github.com/supportdesk/internal/repository"
)

// maxClaimAttempts: сколько раз перечитывать диалоги, если свободный слот перехватил другой сотрудник.
const maxClaimAttempts = 5

type ConversationService struct {
	convs    ConversationStore
	messages MessageStore
	users    UserStore
	orders   OrderStore
	notifier *NotificationService
	push     Pusher
	now      func() time.Time
}

func NewConversationService(convs ConversationStore, messages MessageStore, users UserStore, orders OrderStore,
	notifier *NotificationService, push Pusher) *ConversationService {
	return &ConversationService{
		convs:    convs,
		messages: messages,
		users:    users,
		orders:   orders,
		notifier: notifier,
		push:     push,
		now:      time.Now,
	}
}

// CreateOrJoin открывает диалог.
// Клиент получает свой единственный диалог [nil, клиент]; при создании все сотрудники получают customer_request.
// Сотрудник присоединяется к диалогу получателя: занимает свободный слот атомарным условным обновлением
// либо создаёт новый диалог [сотрудник, получатель].
func (s *ConversationService) CreateOrJoin(ctx context.Context, caller *model.User, recipientID string) (*model.Conversation, error) {
	recipientID = strings.TrimSpace(recipientID)
	if !caller.IsStaff() {
		return s.openAsCustomer(ctx, caller, recipientID)
	}
	if recipientID == "" {
		return nil, apperr.Validation("recipientId is required")
	}
	if recipientID == caller.ID {
		return nil, apperr.Validation("cannot start a conversation with yourself")
	}
	if _, err := s.users.GetByID(ctx, recipientID); err != nil {
		return nil, storeErr("conversation.GetRecipient", err, "user not found")
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		candidates, err := s.convs.ListByParticipant(ctx, recipientID)
		if err != nil {
			return nil, apperr.Internal("conversation.ListCandidates", err)
		}
		if len(candidates) == 0 {
			return s.create(ctx, []*string{model.Slot(caller.ID), model.Slot(recipientID)})
		}
		for i := range candidates {
			if candidates[i].HasParticipant(caller.ID) {
				return &candidates[i], nil
			}
		}

		conv, claimed, err := s.tryJoin(ctx, candidates, caller.ID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, apperr.Forbidden("conversation already has two participants")
		}
		if !claimed {
			logger.Debugf("conversation %s: slot taken concurrently, retrying (attempt %d)", conv.ID, attempt+1)
			continue
		}
		if _, err := s.notifier.ResolveClaim(ctx, conv.ID, caller.ID); err != nil {
			logger.Errorf("conversation %s: resolve claim: %v", conv.ID, err)
		}
		return s.reload(ctx, conv.ID)
	}
	return nil, apperr.Conflict("conversation is being claimed by another staff member, try again")
}

// tryJoin выбирает кандидата со свободным слотом (или с одним участником) и пытается в него войти.
// conv == nil: присоединиться некуда. claimed == false: проиграли гонку, нужно перечитать.
func (s *ConversationService) tryJoin(ctx context.Context, candidates []model.Conversation, userID string) (*model.Conversation, bool, error) {
	for i := range candidates {
		c := &candidates[i]
		if slot := c.NullSlot(); slot >= 0 {
			ok, err := s.convs.ClaimSlot(ctx, c.ID, slot, userID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, false, apperr.Internal("conversation.ClaimSlot", err)
			}
			return c, ok, nil
		}
	}
	for i := range candidates {
		c := &candidates[i]
		if len(c.Recipients) < model.MaxRecipients {
			ok, err := s.convs.AppendRecipient(ctx, c.ID, userID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, false, apperr.Internal("conversation.AppendRecipient", err)
			}
			return c, ok, nil
		}
	}
	return nil, false, nil
}

func (s *ConversationService) openAsCustomer(ctx context.Context, caller *model.User, recipientID string) (*model.Conversation, error) {
	if recipientID != "" && recipientID != caller.ID {
		return nil, apperr.Forbidden("customers can only open their own support conversation")
	}
	existing, err := s.convs.ListByParticipant(ctx, caller.ID)
	if err != nil {
		return nil, apperr.Internal("conversation.ListOwn", err)
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}
	conv, err := s.create(ctx, []*string{nil, model.Slot(caller.ID)})
	if err != nil {
		return nil, err
	}
	if _, err := s.notifier.RaiseCustomerRequest(ctx, caller, conv.ID); err != nil {
		logger.Errorf("conversation %s: raise customer request: %v", conv.ID, err)
	}
	return conv, nil
}

func (s *ConversationService) create(ctx context.Context, recipients []*string) (*model.Conversation, error) {
	now := s.now().UTC()
	conv := &model.Conversation{
		ID:          uuid.NewString(),
		Recipients:  recipients,
		MessageIDs:  []string{},
		Unread:      map[string]int{},
		MutedUsers:  []string{},
		TypingUsers: []string{},
		Status:      model.ConversationActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, apperr.Internal("conversation.Create", err)
	}
	return conv, nil
}

func (s *ConversationService) reload(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := s.convs.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("conversation.Get", err, "conversation not found")
	}
	return c, nil
}

// load возвращает живой диалог, доступный вызывающему (участнику, а при allowStaff и любому сотруднику).
func (s *ConversationService) load(ctx context.Context, caller *model.User, id string, allowStaff bool) (*model.Conversation, error) {
	c, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == model.ConversationDeleted {
		return nil, apperr.NotFound("conversation not found")
	}
	if c.HasParticipant(caller.ID) || (allowStaff && caller.IsStaff()) {
		return c, nil
	}
	return nil, apperr.Forbidden("you are not a participant of this conversation")
}

// List: сотрудники видят все диалоги, остальные только свои.
func (s *ConversationService) List(ctx context.Context, caller *model.User) ([]model.Conversation, error) {
	var (
		list []model.Conversation
		err  error
	)
	if caller.IsStaff() {
		list, err = s.convs.ListAll(ctx)
	} else {
		list, err = s.convs.ListByParticipant(ctx, caller.ID)
	}
	if err != nil {
		return nil, apperr.Internal("conversation.List", err)
	}
	return list, nil
}

func (s *ConversationService) Get(ctx context.Context, caller *model.User, id string) (*model.Conversation, error) {
	return s.load(ctx, caller, id, true)
}

// SendMessage сохраняет сообщение, обновляет last_message и счётчики непрочитанных,
// затем отправляет receive-message получателям, которые онлайн.
func (s *ConversationService) SendMessage(ctx context.Context, caller *model.User, in SendInput) (*model.Message, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	conv, err := s.load(ctx, caller, in.ConversationID, false)
	if err != nil {
		return nil, err
	}
	order, err := snapshotOrder(ctx, s.orders, in.OrderID)
	if err != nil {
		return nil, err
	}
	receivers := conv.Others(caller.ID)
	msg := newMessage(caller.ID, receivers, in, order, s.now().UTC())
	msg.ConversationID = &conv.ID
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperr.Internal("conversation.CreateMessage", err)
	}
	if err := s.convs.RecordMessage(ctx, conv.ID, msg.ID, receivers); err != nil {
		return nil, storeErr("conversation.RecordMessage", err, "conversation not found")
	}
	pushAll(s.push, receivers, model.Event{Type: model.EventReceiveMessage, Payload: msg})
	return msg, nil
}

// MarkRead отмечает прочитанными сообщения, адресованные вызывающему, и удаляет его счётчик.
func (s *ConversationService) MarkRead(ctx context.Context, caller *model.User, id string) (int64, error) {
	conv, err := s.load(ctx, caller, id, false)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.MarkThreadRead(ctx, conv.ID, caller.ID, s.now().UTC())
	if err != nil {
		return 0, apperr.Internal("conversation.MarkThreadRead", err)
	}
	if err := s.convs.ClearUnread(ctx, conv.ID, caller.ID); err != nil {
		return 0, storeErr("conversation.ClearUnread", err, "conversation not found")
	}
	pushAll(s.push, conv.Others(caller.ID), model.Event{
		Type:    model.EventConversationRead,
		Payload: model.ThreadReadPayload{ThreadID: conv.ID, UserID: caller.ID},
	})
	return n, nil
}

// Unread: ok=false, если записи для пользователя нет.
func (s *ConversationService) Unread(ctx context.Context, id, userID string) (int, bool, error) {
	c, err := s.reload(ctx, id)
	if err != nil {
		return 0, false, err
	}
	n, ok := c.UnreadFor(userID)
	return n, ok, nil
}

func (s *ConversationService) setMuted(ctx context.Context, caller *model.User, id string, muted bool) (*model.Conversation, error) {
	if _, err := s.load(ctx, caller, id, false); err != nil {
		return nil, err
	}
	if err := s.convs.SetMuted(ctx, id, caller.ID, muted); err != nil {
		return nil, storeErr("conversation.SetMuted", err, "conversation not found")
	}
	return s.reload(ctx, id)
}

func (s *ConversationService) Mute(ctx context.Context, caller *model.User, id string) (*model.Conversation, error) {
	return s.setMuted(ctx, caller, id, true)
}

func (s *ConversationService) Unmute(ctx context.Context, caller *model.User, id string) (*model.Conversation, error) {
	return s.setMuted(ctx, caller, id, false)
}

func (s *ConversationService) setStatus(ctx context.Context, caller *model.User, id string, status model.ConversationStatus) (*model.Conversation, error) {
	if _, err := s.load(ctx, caller, id, true); err != nil {
		return nil, err
	}
	if err := s.convs.SetStatus(ctx, id, status); err != nil {
		return nil, storeErr("conversation.SetStatus", err, "conversation not found")
	}
	return s.reload(ctx, id)
}

func (s *ConversationService) Archive(ctx context.Context, caller *model.User, id string) (*model.Conversation, error) {
	return s.setStatus(ctx, caller, id, model.ConversationArchived)
}

// Delete: мягкое удаление, диалог пропадает из списков.
func (s *ConversationService) Delete(ctx context.Context, caller *model.User, id string) error {
	_, err := s.setStatus(ctx, caller, id, model.ConversationDeleted)
	return err
}

// Typing обновляет набор печатающих и всегда рассылает user-typing остальным участникам.
func (s *ConversationService) Typing(ctx context.Context, caller *model.User, id string, isTyping bool) error {
	conv, err := s.load(ctx, caller, id, false)
	if err != nil {
		return err
	}
	if err := s.convs.SetTyping(ctx, id, caller.ID, isTyping); err != nil {
		return storeErr("conversation.SetTyping", err, "conversation not found")
	}
	pushAll(s.push, conv.Others(caller.ID), model.Event{
		Type:    model.EventUserTyping,
		Payload: model.TypingPayload{ConversationID: id, UserID: caller.ID, IsTyping: isTyping},
	})
	return nil
}

// Release освобождает слот сотрудника и предлагает диалог остальным сотрудникам (chat_transfer).
func (s *ConversationService) Release(ctx context.Context, caller *model.User, id string) (*model.Conversation, error) {
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only staff can release a conversation")
	}
	if _, err := s.load(ctx, caller, id, false); err != nil {
		return nil, err
	}
	ok, err := s.convs.ReleaseSlot(ctx, id, caller.ID)
	if err != nil {
		return nil, storeErr("conversation.ReleaseSlot", err, "conversation not found")
	}
	if !ok {
		return nil, apperr.Forbidden("you are not assigned to this conversation")
	}
	if _, err := s.notifier.RaiseChatTransfer(ctx, caller, id); err != nil {
		logger.Errorf("conversation %s: raise chat transfer: %v", id, err)
	}
	return s.reload(ctx, id)
}
