package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supportdesk/internal/apperr"
	"github.com/supportdesk/internal/logger"
	"github.com/supportdesk/internal/model"
)

const callHistoryLimit = 50

type CallService struct {
	calls  CallStore
	groups GroupStore
	users  UserStore
	push   Pusher
	now    func() time.Time
}

func NewCallService(calls CallStore, groups GroupStore, users UserStore, push Pusher) *CallService {
	return &CallService{calls: calls, groups: groups, users: users, push: push, now: time.Now}
}

type StartCallInput struct {
	ReceiverID string          `json:"receiverId"`
	GroupID    string          `json:"groupId"`
	Media      model.CallMedia `json:"callType"`
}

// Start создаёт активный звонок и отправляет incoming-call остальным участникам.
// Цель ровно одна: собеседник или группа.
func (s *CallService) Start(ctx context.Context, caller *model.User, in StartCallInput) (*model.Call, error) {
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.GroupID = strings.TrimSpace(in.GroupID)
	if (in.ReceiverID == "") == (in.GroupID == "") {
		return nil, apperr.Validation("exactly one of receiverId or groupId is required")
	}
	if in.Media == "" {
		in.Media = model.CallAudio
	}
	if in.Media != model.CallAudio && in.Media != model.CallVideo {
		return nil, apperr.Validationf("unknown call type %q", in.Media)
	}
	call := &model.Call{
		ID:        uuid.NewString(),
		CallerID:  caller.ID,
		Media:     in.Media,
		Status:    model.CallActive,
		MissedBy:  []string{},
		StartedAt: s.now().UTC(),
	}
	if in.ReceiverID != "" {
		if in.ReceiverID == caller.ID {
			return nil, apperr.Validation("cannot call yourself")
		}
		if _, err := s.users.GetByID(ctx, in.ReceiverID); err != nil {
			return nil, storeErr("call.GetReceiver", err, "user not found")
		}
		call.ReceiverID = &in.ReceiverID
		call.Participants = []string{caller.ID, in.ReceiverID}
	} else {
		g, err := s.groups.GetByID(ctx, in.GroupID)
		if err != nil {
			return nil, storeErr("call.GetGroup", err, "group not found")
		}
		if !g.IsMember(caller.ID) {
			return nil, apperr.Forbidden("you are not a member of this group")
		}
		call.GroupID = &g.ID
		call.IsGroupCall = true
		call.Participants = uniqueIDs(append([]string{caller.ID}, g.Members...))
	}
	if err := s.calls.Create(ctx, call); err != nil {
		return nil, apperr.Internal("call.Create", err)
	}
	pushAll(s.push, call.Others(caller.ID), model.Event{Type: model.EventIncomingCall, Payload: call})
	return call, nil
}

func (s *CallService) reload(ctx context.Context, id string) (*model.Call, error) {
	c, err := s.calls.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("call.Get", err, "call not found")
	}
	return c, nil
}

func (s *CallService) Get(ctx context.Context, caller *model.User, id string) (*model.Call, error) {
	c, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.involved(c, caller.ID) {
		return nil, apperr.Forbidden("you are not a participant of this call")
	}
	return c, nil
}

func (s *CallService) involved(c *model.Call, userID string) bool {
	if c.HasParticipant(userID) {
		return true
	}
	if c.ReceiverID != nil && *c.ReceiverID == userID {
		return true
	}
	return slices.Contains(c.MissedBy, userID)
}

// groupCall загружает активный групповой звонок и проверяет членство в группе.
func (s *CallService) groupCall(ctx context.Context, caller *model.User, id string) (*model.Call, error) {
	c, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsGroupCall || c.GroupID == nil {
		return nil, apperr.Validation("not a group call")
	}
	if c.IsTerminal() {
		return nil, apperr.Validation("call is not active")
	}
	g, err := s.groups.GetByID(ctx, *c.GroupID)
	if err != nil {
		return nil, storeErr("call.GetGroup", err, "group not found")
	}
	if !g.IsMember(caller.ID) {
		return nil, apperr.Forbidden("you are not a member of this group")
	}
	return c, nil
}

func (s *CallService) Join(ctx context.Context, caller *model.User, id string) (*model.Call, error) {
	c, err := s.groupCall(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	added, err := s.calls.AddParticipant(ctx, c.ID, caller.ID)
	if err != nil {
		return nil, storeErr("call.AddParticipant", err, "call not found")
	}
	if c, err = s.reload(ctx, id); err != nil {
		return nil, err
	}
	if added {
		pushAll(s.push, c.Others(caller.ID), model.Event{
			Type:    model.EventCallParticipantJoined,
			Payload: model.CallParticipantPayload{CallID: c.ID, UserID: caller.ID},
		})
	}
	return c, nil
}

// Leave убирает участника из группового звонка; последний вышедший завершает звонок.
func (s *CallService) Leave(ctx context.Context, caller *model.User, id string) (*model.Call, error) {
	c, err := s.groupCall(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.leave(ctx, c, caller.ID, model.EndCompleted)
}

func (s *CallService) leave(ctx context.Context, c *model.Call, userID string, reason model.EndReason) (*model.Call, error) {
	removed, err := s.calls.RemoveParticipant(ctx, c.ID, userID)
	if err != nil {
		return nil, storeErr("call.RemoveParticipant", err, "call not found")
	}
	if c, err = s.reload(ctx, c.ID); err != nil {
		return nil, err
	}
	if !removed {
		return c, nil
	}
	pushAll(s.push, c.Participants, model.Event{
		Type:    model.EventCallParticipantLeft,
		Payload: model.CallParticipantPayload{CallID: c.ID, UserID: userID},
	})
	if len(c.Participants) == 0 {
		return s.finish(ctx, c, userID, model.CallEnded, reason, nil)
	}
	return c, nil
}

// End завершает активный звонок. Повторный вызов возвращает уже сохранённую запись без изменений.
func (s *CallService) End(ctx context.Context, caller *model.User, id string, reason model.EndReason) (*model.Call, error) {
	if reason == "" {
		reason = model.EndCompleted
	}
	if !reason.Valid() {
		return nil, apperr.Validationf("unknown end reason %q", reason)
	}
	c, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, c, caller.ID, model.CallEnded, reason, nil)
}

// Missed помечает звонок пропущенным всеми участниками, кроме вызывающего.
func (s *CallService) Missed(ctx context.Context, caller *model.User, id string) (*model.Call, error) {
	c, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	missedBy := c.Others(caller.ID)
	if c.ReceiverID != nil && *c.ReceiverID != caller.ID {
		missedBy = uniqueIDs(append(missedBy, *c.ReceiverID))
	}
	return s.finish(ctx, c, caller.ID, model.CallMissed, model.EndMissed, missedBy)
}

func (s *CallService) finish(ctx context.Context, c *model.Call, by string, status model.CallStatus, reason model.EndReason, missedBy []string) (*model.Call, error) {
	changed, err := s.calls.Finish(ctx, c.ID, status, reason, s.now().UTC(), missedBy)
	if err != nil {
		return nil, storeErr("call.Finish", err, "call not found")
	}
	updated, err := s.reload(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}
	notify := c.Others(by)
	if c.ReceiverID != nil && *c.ReceiverID != by {
		notify = append(notify, *c.ReceiverID)
	}
	if c.CallerID != by {
		notify = append(notify, c.CallerID)
	}
	pushAll(s.push, uniqueIDs(notify), model.Event{Type: model.EventCallEnded, Payload: updated})
	return updated, nil
}

func (s *CallService) Active(ctx context.Context, user *model.User) ([]model.Call, error) {
	list, err := s.calls.ListActive(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal("call.Active", err)
	}
	return list, nil
}

func (s *CallService) History(ctx context.Context, user *model.User) ([]model.Call, error) {
	list, err := s.calls.ListHistory(ctx, user.ID, callHistoryLimit)
	if err != nil {
		return nil, apperr.Internal("call.History", err)
	}
	return list, nil
}

type SignalInput struct {
	CallID    string `json:"callId"`
	To        string `json:"to"`
	Kind      string `json:"kind"`
	SDP       string `json:"sdp"`
	Candidate string `json:"candidate"`
}

// Signal пересылает SDP offer/answer или ICE-кандидата другому участнику активного звонка.
// false: адресат не в сети.
func (s *CallService) Signal(ctx context.Context, caller *model.User, in SignalInput) (bool, error) {
	switch in.Kind {
	case "offer", "answer":
		if in.SDP == "" {
			return false, apperr.Validation("sdp is required")
		}
	case "ice":
		if in.Candidate == "" {
			return false, apperr.Validation("candidate is required")
		}
	default:
		return false, apperr.Validationf("unknown signal kind %q", in.Kind)
	}
	c, err := s.Get(ctx, caller, in.CallID)
	if err != nil {
		return false, err
	}
	if c.IsTerminal() {
		return false, apperr.Validation("call is not active")
	}
	if in.To == caller.ID || !c.HasParticipant(in.To) {
		return false, apperr.Validation("recipient is not a participant of this call")
	}
	return s.push.Send(in.To, model.Event{Type: model.EventCallSignal, Payload: model.CallSignalPayload{
		CallID:    c.ID,
		From:      caller.ID,
		Kind:      in.Kind,
		SDP:       in.SDP,
		Candidate: in.Candidate,
	}}), nil
}

// HandleDisconnect вызывается шлюзом при обрыве соединения: личные звонки завершаются с network_issue,
// из групповых пользователь выходит.
func (s *CallService) HandleDisconnect(ctx context.Context, userID string) {
	active, err := s.calls.ListActive(ctx, userID)
	if err != nil {
		logger.Errorf("call.HandleDisconnect %s: %v", userID, err)
		return
	}
	for i := range active {
		c := &active[i]
		if c.IsGroupCall {
			_, err = s.leave(ctx, c, userID, model.EndNetworkIssue)
		} else {
			_, err = s.finish(ctx, c, userID, model.CallEnded, model.EndNetworkIssue, nil)
		}
		if err != nil {
			logger.Errorf("call.HandleDisconnect %s call %s: %v", userID, c.ID, err)
		}
	}
}
