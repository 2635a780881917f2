package service

import (
	"context"
	"fmt"
	"time"

	"NPSEngine/internal/backend"
	"NPSEngine/internal/model"
	"NPSEngine/pkg/errors"
)

// fakeBackend 内存版后端，行为对齐 internal/backend 客户端：
// createIfAbsent、迁移表校验、重复即成功。
type fakeBackend struct {
	campaigns     map[int64]*model.Campaign
	orders        []model.Order
	controls      map[int64]*model.DeliveryControl
	controlKeys   map[string]int64
	conversations map[int64]*model.Conversation
	convByControl map[int64]int64
	responses     []model.SurveyResponse
	responseMsgs  map[string]bool
	due           []int64
	orphans       []int64
	nextID        int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		campaigns:     make(map[int64]*model.Campaign),
		controls:      make(map[int64]*model.DeliveryControl),
		controlKeys:   make(map[string]int64),
		conversations: make(map[int64]*model.Conversation),
		convByControl: make(map[int64]int64),
		responseMsgs:  make(map[string]bool),
	}
}

func (f *fakeBackend) addCampaign(c *model.Campaign) {
	f.campaigns[c.ID] = c
}

func (f *fakeBackend) id() int64 {
	f.nextID++
	return f.nextID
}

func controlKey(orderID string, campaignID int64) string {
	return fmt.Sprintf("%s|%d", orderID, campaignID)
}

func (f *fakeBackend) ListActiveCampaigns(ctx context.Context, immediateOnly bool) ([]model.Campaign, error) {
	var out []model.Campaign
	for _, c := range f.campaigns {
		if !c.Active {
			continue
		}
		if immediateOnly && c.TriggerMode != model.TriggerImmediate {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeBackend) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeBackend) ListRecentOrders(ctx context.Context, since time.Time, branches []string) ([]model.Order, error) {
	return f.orders, nil
}

func (f *fakeBackend) CreateDeliveryControl(ctx context.Context, ctrl *model.DeliveryControl) (bool, int64, error) {
	key := controlKey(ctrl.OrderID, ctrl.CampaignID)
	if existing, ok := f.controlKeys[key]; ok {
		return false, existing, nil
	}
	id := f.id()
	cp := *ctrl
	cp.ID = id
	f.controls[id] = &cp
	f.controlKeys[key] = id
	return true, id, nil
}

func (f *fakeBackend) TransitionDelivery(ctx context.Context, ctrl *model.DeliveryControl, to model.DeliveryStatus, fields backend.TransitionFields) error {
	if !ctrl.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", errors.InvalidTransition, ctrl.Status, to)
	}
	stored, ok := f.controls[ctrl.ID]
	if !ok {
		return fmt.Errorf("delivery control %d not found", ctrl.ID)
	}
	stored.Status = to
	ctrl.Status = to
	if fields.LastError != "" {
		stored.LastError = fields.LastError
		ctrl.LastError = fields.LastError
	}
	if fields.SentAt != nil {
		stored.SentAt = fields.SentAt
		ctrl.SentAt = fields.SentAt
	}
	if fields.EligibleAt != nil {
		stored.EligibleAt = fields.EligibleAt
		ctrl.EligibleAt = fields.EligibleAt
	}
	return nil
}

func (f *fakeBackend) controlFor(orderID string, campaignID int64) *model.DeliveryControl {
	id, ok := f.controlKeys[controlKey(orderID, campaignID)]
	if !ok {
		return nil
	}
	return f.controls[id]
}

func (f *fakeBackend) GetDeliveryControlByID(ctx context.Context, id int64) (*model.DeliveryControl, error) {
	c, ok := f.controls[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeBackend) ListDueDeliveries(ctx context.Context, now time.Time) ([]model.DeliveryControl, error) {
	var out []model.DeliveryControl
	for _, id := range f.due {
		if c, ok := f.controls[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeBackend) ListOrphanDeliveries(ctx context.Context) ([]model.DeliveryControl, error) {
	var out []model.DeliveryControl
	for _, id := range f.orphans {
		if c, ok := f.controls[id]; ok {
			if _, has := f.convByControl[id]; !has {
				out = append(out, *c)
			}
		}
	}
	return out, nil
}

func (f *fakeBackend) CountPendingDeliveries(ctx context.Context, campaignID int64) (int, error) {
	count := 0
	for _, c := range f.controls {
		if c.CampaignID == campaignID && !c.Status.IsTerminal() && c.Status != model.DeliveryStatusSent {
			count++
		}
	}
	return count, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	if existing, ok := f.convByControl[conv.DeliveryControlID]; ok {
		cp := *f.conversations[existing]
		return &cp, nil
	}
	id := f.id()
	cp := *conv
	cp.ID = id
	f.conversations[id] = &cp
	f.convByControl[conv.DeliveryControlID] = id
	out := cp
	return &out, nil
}

func (f *fakeBackend) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	prev, ok := f.conversations[conv.ID]
	if !ok {
		return fmt.Errorf("conversation %d not found", conv.ID)
	}
	if prev.Status != conv.Status && !prev.Status.CanTransition(conv.Status) {
		return fmt.Errorf("%w: %s -> %s", errors.InvalidTransition, prev.Status, conv.Status)
	}
	cp := *conv
	f.conversations[conv.ID] = &cp
	return nil
}

func (f *fakeBackend) FindActiveConversation(ctx context.Context, candidates []string, channelID string) (*model.Conversation, error) {
	set := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		set[c] = true
	}
	for _, conv := range f.conversations {
		if conv.Status == model.ConversationStatusActive && conv.ChannelID == channelID && set[conv.Destination] {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) AppendResponse(ctx context.Context, resp *model.SurveyResponse) error {
	key := fmt.Sprintf("%s|%d", resp.MessageID, resp.QuestionOrdinal)
	if f.responseMsgs[key] {
		return nil
	}
	f.responseMsgs[key] = true
	cp := *resp
	cp.ID = f.id()
	f.responses = append(f.responses, cp)
	return nil
}

// fakeNumberCache 内存号码缓存
type fakeNumberCache struct {
	entries map[string]bool
}

func newFakeNumberCache() *fakeNumberCache {
	return &fakeNumberCache{entries: make(map[string]bool)}
}

func (f *fakeNumberCache) Get(ctx context.Context, channelID, digits string) (bool, bool, error) {
	capable, ok := f.entries[channelID+"|"+digits]
	return capable, ok, nil
}

func (f *fakeNumberCache) Set(ctx context.Context, channelID, digits string, capable bool) error {
	f.entries[channelID+"|"+digits] = capable
	return nil
}

// fakeDedup 内存去重
type fakeDedup struct {
	marks map[string]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{marks: make(map[string]bool)}
}

func (f *fakeDedup) TryMark(ctx context.Context, messageID string) (bool, error) {
	if f.marks[messageID] {
		return false, nil
	}
	f.marks[messageID] = true
	return true, nil
}

func (f *fakeDedup) Unmark(ctx context.Context, messageID string) error {
	delete(f.marks, messageID)
	return nil
}

func (f *fakeDedup) MarkDone(ctx context.Context, messageID string) error {
	f.marks[messageID] = true
	return nil
}
