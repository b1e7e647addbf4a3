package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
)

type NotificationService struct {
	notifications NotificationStore
	users         UserStore
	messages      MessageStore
	calls         CallStore
	orders        OrderStore
	push          Pusher
	now           func() time.Time
}

func NewNotificationService(notifications NotificationStore, users UserStore, messages MessageStore,
	calls CallStore, orders OrderStore, push Pusher) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		messages:      messages,
		calls:         calls,
		orders:        orders,
		push:          push,
		now:           time.Now,
	}
}

type RaiseInput struct {
	Type           model.NotificationType `json:"notification_type"`
	Actor          string                 `json:"-"`
	Recipients     []string               `json:"notified_to"`
	Content        string                 `json:"content"`
	MessageID      string                 `json:"message_id"`
	OrderID        string                 `json:"order_id"`
	ConversationID string                 `json:"conversation_id"`
}

// Raise сохраняет по одной записи на получателя и отправляет receive-notification тем, кто онлайн.
// Офлайн-получатели увидят запись в списке уведомлений.
func (s *NotificationService) Raise(ctx context.Context, in RaiseInput) ([]model.Notification, error) {
	if !in.Type.Valid() {
		return nil, apperr.Validationf("unknown notification type %q", in.Type)
	}
	recipients := uniqueIDs(in.Recipients)
	if len(recipients) == 0 {
		return nil, apperr.Validation("at least one recipient is required")
	}
	now := s.now().UTC()
	records := make([]*model.Notification, 0, len(recipients))
	for _, r := range recipients {
		records = append(records, &model.Notification{
			ID:             uuid.NewString(),
			Type:           in.Type,
			NotifiedTo:     []string{r},
			NotifiedBy:     in.Actor,
			Content:        in.Content,
			MessageID:      strPtr(in.MessageID),
			OrderID:        strPtr(in.OrderID),
			ConversationID: strPtr(in.ConversationID),
			CreatedAt:      now,
		})
	}
	if err := s.notifications.CreateMany(ctx, records); err != nil {
		return nil, apperr.Internal("notification.Raise", err)
	}
	out := make([]model.Notification, 0, len(records))
	delivered := 0
	for _, n := range records {
		if s.push.Send(n.NotifiedTo[0], model.Event{Type: model.EventReceiveNotification, Payload: n}) {
			delivered++
		}
		out = append(out, *n)
	}
	logger.Debugf("notification %s raised to %d recipients, %d online", in.Type, len(records), delivered)
	return out, nil
}

func (s *NotificationService) List(ctx context.Context, caller *model.User) ([]model.Notification, error) {
	list, err := s.notifications.ListByRecipient(ctx, caller.ID)
	if err != nil {
		return nil, apperr.Internal("notification.List", err)
	}
	return list, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, caller *model.User, id string) error {
	ok, err := s.notifications.MarkRead(ctx, id, caller.ID, s.now().UTC())
	if err != nil {
		return apperr.Internal("notification.MarkRead", err)
	}
	if !ok {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, caller *model.User) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, caller.ID, s.now().UTC())
	if err != nil {
		return 0, apperr.Internal("notification.MarkAllRead", err)
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, caller *model.User, id string) error {
	ok, err := s.notifications.Delete(ctx, id, caller.ID)
	if err != nil {
		return apperr.Internal("notification.Delete", err)
	}
	if !ok {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (s *NotificationService) DeleteAll(ctx context.Context, caller *model.User) (int64, error) {
	n, err := s.notifications.DeleteAll(ctx, caller.ID)
	if err != nil {
		return 0, apperr.Internal("notification.DeleteAll", err)
	}
	return n, nil
}

// Decline отклоняет собственный ещё не решённый запрос.
func (s *NotificationService) Decline(ctx context.Context, caller *model.User, id string) error {
	ok, err := s.notifications.Decline(ctx, id, caller.ID)
	if err != nil {
		return apperr.Internal("notification.Decline", err)
	}
	if !ok {
		return apperr.NotFound("pending notification not found")
	}
	return nil
}

// ResolveClaim закрывает ожидающие запросы по диалогу после того, как staffID его занял:
// копия staffID принята, у остальных is_accepted=false. Каждому получателю уходит notification-resolved.
func (s *NotificationService) ResolveClaim(ctx context.Context, conversationID, staffID string) ([]model.Notification, error) {
	resolved, err := s.notifications.ResolvePending(ctx, conversationID, staffID)
	if err != nil {
		return nil, apperr.Internal("notification.ResolveClaim", err)
	}
	for i := range resolved {
		n := &resolved[i]
		pushAll(s.push, n.NotifiedTo, model.Event{Type: model.EventNotificationResolved, Payload: n})
	}
	return resolved, nil
}

// RaiseCustomerRequest сообщает всем сотрудникам, включая офлайн, о новом обращении.
func (s *NotificationService) RaiseCustomerRequest(ctx context.Context, customer *model.User, conversationID string) ([]model.Notification, error) {
	return s.raiseToStaff(ctx, model.NotificationCustomerRequest, customer, conversationID,
		fmt.Sprintf("%s is waiting for support", displayName(customer)))
}

// RaiseChatTransfer предлагает освобождённый диалог остальным сотрудникам.
func (s *NotificationService) RaiseChatTransfer(ctx context.Context, staff *model.User, conversationID string) ([]model.Notification, error) {
	return s.raiseToStaff(ctx, model.NotificationChatTransfer, staff, conversationID,
		fmt.Sprintf("%s released a conversation", displayName(staff)))
}

func (s *NotificationService) raiseToStaff(ctx context.Context, typ model.NotificationType, actor *model.User, conversationID, content string) ([]model.Notification, error) {
	staff, err := s.users.ListStaff(ctx)
	if err != nil {
		return nil, apperr.Internal("notification.ListStaff", err)
	}
	recipients := make([]string, 0, len(staff))
	for _, u := range staff {
		if u.ID != actor.ID {
			recipients = append(recipients, u.ID)
		}
	}
	if len(recipients) == 0 {
		logger.Infof("no staff to notify about %s for conversation %s", typ, conversationID)
		return nil, nil
	}
	return s.Raise(ctx, RaiseInput{
		Type:           typ,
		Actor:          actor.ID,
		Recipients:     recipients,
		Content:        content,
		ConversationID: conversationID,
	})
}

// NotifyNewMessage уведомляет получателей сообщения, кроме вызывающего.
func (s *NotificationService) NotifyNewMessage(ctx context.Context, caller *model.User, messageID string) ([]model.Notification, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storeErr("notification.GetMessage", err, "message not found")
	}
	if msg.SenderID != caller.ID && !caller.IsStaff() {
		return nil, apperr.Forbidden("only the sender can notify about a message")
	}
	recipients := make([]string, 0, len(msg.ReceiverIDs))
	for _, r := range msg.ReceiverIDs {
		if r != caller.ID {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return []model.Notification{}, nil
	}
	return s.Raise(ctx, RaiseInput{
		Type:           model.NotificationMessage,
		Actor:          caller.ID,
		Recipients:     recipients,
		Content:        fmt.Sprintf("New message from %s", displayName(caller)),
		MessageID:      msg.ID,
		ConversationID: derefOr(msg.ConversationID),
	})
}

// NotifyNewCall уведомляет участников звонка, кроме вызывающего.
func (s *NotificationService) NotifyNewCall(ctx context.Context, caller *model.User, callID string) ([]model.Notification, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, storeErr("notification.GetCall", err, "call not found")
	}
	if !call.HasParticipant(caller.ID) {
		return nil, apperr.Forbidden("you are not a participant of this call")
	}
	recipients := call.Others(caller.ID)
	if call.ReceiverID != nil && *call.ReceiverID != caller.ID {
		recipients = append(recipients, *call.ReceiverID)
	}
	if call.CallerID != caller.ID {
		recipients = append(recipients, call.CallerID)
	}
	recipients = uniqueIDs(recipients)
	if len(recipients) == 0 {
		return []model.Notification{}, nil
	}
	return s.Raise(ctx, RaiseInput{
		Type:       model.NotificationCall,
		Actor:      caller.ID,
		Recipients: recipients,
		Content:    fmt.Sprintf("%s %s call from %s", call.Status, call.Media, displayName(caller)),
	})
}

// NotifyOrderUpdate: только сотрудники; получатель владелец заказа.
func (s *NotificationService) NotifyOrderUpdate(ctx context.Context, caller *model.User, orderID, status string) ([]model.Notification, error) {
	if !caller.IsStaff() {
		return nil, apperr.Forbidden("only staff can send order updates")
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeErr("notification.GetOrder", err, "order not found")
	}
	if status == "" {
		status = order.Status
	}
	return s.Raise(ctx, RaiseInput{
		Type:       model.NotificationOrderUpdate,
		Actor:      caller.ID,
		Recipients: []string{order.UserID},
		Content:    fmt.Sprintf("Your order %s is now %s", order.ProductName, status),
		OrderID:    order.ID,
	})
}

// Relay пересылает произвольное уведомление онлайн-получателям без сохранения.
func (s *NotificationService) Relay(ctx context.Context, caller *model.User, recipients []string, payload any) int {
	ev := model.Event{Type: model.EventReceiveNotification, Payload: map[string]any{
		"from":    caller.ID,
		"payload": payload,
	}}
	return pushAll(s.push, uniqueIDs(recipients), ev)
}

func displayName(u *model.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

func derefOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
