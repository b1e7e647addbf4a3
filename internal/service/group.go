package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
)

type GroupService struct {
	groups   GroupStore
	messages MessageStore
	users    UserStore
	orders   OrderStore
	notifier *NotificationService
	push     Pusher
	now      func() time.Time
}

func NewGroupService(groups GroupStore, messages MessageStore, users UserStore, orders OrderStore,
	notifier *NotificationService, push Pusher) *GroupService {
	return &GroupService{
		groups:   groups,
		messages: messages,
		users:    users,
		orders:   orders,
		notifier: notifier,
		push:     push,
		now:      time.Now,
	}
}

type CreateGroupInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Members     []string `json:"members"`
}

// Create создаёт группу, отправляет приветствие от создателя и приглашения остальным участникам.
func (s *GroupService) Create(ctx context.Context, caller *model.User, in CreateGroupInput) (*model.GroupConversation, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	members := uniqueIDs(append([]string{caller.ID}, in.Members...))
	for _, id := range members[1:] {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return nil, storeErr("group.GetMember", err, "user not found: "+id)
		}
	}
	now := s.now().UTC()
	g := &model.GroupConversation{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		Image:        strings.TrimSpace(in.Image),
		AdminID:      caller.ID,
		Members:      members,
		MessageIDs:   []string{},
		Unread:       map[string]int{},
		MutedMembers: []string{},
		TypingUsers:  []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, apperr.Internal("group.Create", err)
	}
	if _, err := s.send(ctx, caller, g, SendInput{GroupID: g.ID, Text: "Welcome to the group " + title}); err != nil {
		logger.Errorf("group %s: welcome message: %v", g.ID, err)
	}
	if invited := g.Others(caller.ID); len(invited) > 0 {
		s.invite(ctx, caller, g, invited)
	}
	return s.reload(ctx, g.ID)
}

func (s *GroupService) invite(ctx context.Context, caller *model.User, g *model.GroupConversation, userIDs []string) {
	_, err := s.notifier.Raise(ctx, RaiseInput{
		Type:       model.NotificationGroupInvite,
		Actor:      caller.ID,
		Recipients: userIDs,
		Content:    fmt.Sprintf("%s added you to the group %s", displayName(caller), g.Title),
	})
	if err != nil {
		logger.Errorf("group %s: raise group invite: %v", g.ID, err)
	}
}

func (s *GroupService) reload(ctx context.Context, id string) (*model.GroupConversation, error) {
	g, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("group.Get", err, "group not found")
	}
	return g, nil
}

func (s *GroupService) loadAsMember(ctx context.Context, caller *model.User, id string) (*model.GroupConversation, error) {
	g, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(caller.ID) {
		return nil, apperr.Forbidden("you are not a member of this group")
	}
	return g, nil
}

func (s *GroupService) loadAsAdmin(ctx context.Context, caller *model.User, id string, action string) (*model.GroupConversation, error) {
	g, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.AdminID != caller.ID {
		return nil, apperr.Forbidden("only the group admin can " + action)
	}
	return g, nil
}

func (s *GroupService) List(ctx context.Context, caller *model.User) ([]model.GroupConversation, error) {
	list, err := s.groups.ListByMember(ctx, caller.ID)
	if err != nil {
		return nil, apperr.Internal("group.List", err)
	}
	return list, nil
}

func (s *GroupService) Get(ctx context.Context, caller *model.User, id string) (*model.GroupConversation, error) {
	return s.loadAsMember(ctx, caller, id)
}

func (s *GroupService) SendMessage(ctx context.Context, caller *model.User, in SendInput) (*model.Message, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	g, err := s.loadAsMember(ctx, caller, in.GroupID)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, caller, g, in)
}

func (s *GroupService) send(ctx context.Context, caller *model.User, g *model.GroupConversation, in SendInput) (*model.Message, error) {
	order, err := snapshotOrder(ctx, s.orders, in.OrderID)
	if err != nil {
		return nil, err
	}
	receivers := g.Others(caller.ID)
	msg := newMessage(caller.ID, receivers, in, order, s.now().UTC())
	msg.GroupID = &g.ID
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperr.Internal("group.CreateMessage", err)
	}
	if err := s.groups.RecordMessage(ctx, g.ID, msg.ID, receivers); err != nil {
		return nil, storeErr("group.RecordMessage", err, "group not found")
	}
	pushAll(s.push, receivers, model.Event{Type: model.EventReceiveMessage, Payload: msg})
	return msg, nil
}

func (s *GroupService) MarkRead(ctx context.Context, caller *model.User, id string) (int64, error) {
	g, err := s.loadAsMember(ctx, caller, id)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.MarkThreadRead(ctx, g.ID, caller.ID, s.now().UTC())
	if err != nil {
		return 0, apperr.Internal("group.MarkThreadRead", err)
	}
	if err := s.groups.ClearUnread(ctx, g.ID, caller.ID); err != nil {
		return 0, storeErr("group.ClearUnread", err, "group not found")
	}
	pushAll(s.push, g.Others(caller.ID), model.Event{
		Type:    model.EventConversationRead,
		Payload: model.ThreadReadPayload{ThreadID: g.ID, UserID: caller.ID},
	})
	return n, nil
}

func (s *GroupService) Unread(ctx context.Context, id, userID string) (int, bool, error) {
	g, err := s.reload(ctx, id)
	if err != nil {
		return 0, false, err
	}
	n, ok := g.UnreadFor(userID)
	return n, ok, nil
}

func (s *GroupService) setMuted(ctx context.Context, caller *model.User, id string, muted bool) (*model.GroupConversation, error) {
	if _, err := s.loadAsMember(ctx, caller, id); err != nil {
		return nil, err
	}
	if err := s.groups.SetMuted(ctx, id, caller.ID, muted); err != nil {
		return nil, storeErr("group.SetMuted", err, "group not found")
	}
	return s.reload(ctx, id)
}

func (s *GroupService) Mute(ctx context.Context, caller *model.User, id string) (*model.GroupConversation, error) {
	return s.setMuted(ctx, caller, id, true)
}

func (s *GroupService) Unmute(ctx context.Context, caller *model.User, id string) (*model.GroupConversation, error) {
	return s.setMuted(ctx, caller, id, false)
}

func (s *GroupService) Typing(ctx context.Context, caller *model.User, id string, isTyping bool) error {
	g, err := s.loadAsMember(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := s.groups.SetTyping(ctx, id, caller.ID, isTyping); err != nil {
		return storeErr("group.SetTyping", err, "group not found")
	}
	pushAll(s.push, g.Others(caller.ID), model.Event{
		Type:    model.EventUserTyping,
		Payload: model.TypingPayload{GroupID: id, UserID: caller.ID, IsTyping: isTyping},
	})
	return nil
}

// AddMember идемпотентен; новый участник получает group_invite.
func (s *GroupService) AddMember(ctx context.Context, caller *model.User, id, userID string) (*model.GroupConversation, error) {
	g, err := s.loadAsAdmin(ctx, caller, id, "add users")
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, storeErr("group.GetMember", err, "user not found")
	}
	added, err := s.groups.AddMember(ctx, id, userID)
	if err != nil {
		return nil, storeErr("group.AddMember", err, "group not found")
	}
	if added {
		s.invite(ctx, caller, g, []string{userID})
	}
	return s.reload(ctx, id)
}

func (s *GroupService) RemoveMember(ctx context.Context, caller *model.User, id, userID string) (*model.GroupConversation, error) {
	g, err := s.loadAsAdmin(ctx, caller, id, "remove users")
	if err != nil {
		return nil, err
	}
	if userID == g.AdminID {
		return nil, apperr.Validation("the group admin cannot be removed")
	}
	if _, err := s.groups.RemoveMember(ctx, id, userID); err != nil {
		return nil, storeErr("group.RemoveMember", err, "group not found")
	}
	return s.reload(ctx, id)
}

// Delete удаляет группу безвозвратно.
func (s *GroupService) Delete(ctx context.Context, caller *model.User, id string) error {
	if _, err := s.loadAsAdmin(ctx, caller, id, "delete the group"); err != nil {
		return err
	}
	if err := s.groups.Delete(ctx, id); err != nil {
		return storeErr("group.Delete", err, "group not found")
	}
	return nil
}
