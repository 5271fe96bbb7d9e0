package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/model"
	"support-chat-backend/internal/relay/event"

	"github.com/rs/zerolog/log"
)

const DefaultRefreshInterval = 3 * time.Second

// ConversationAPI is the admin REST surface the reconciler needs.
type ConversationAPI interface {
	ListConversations(ctx context.Context) ([]dto.ConversationResponse, error)
	MarkConversationRead(ctx context.Context, conversationID string) (dto.MarkConversationReadResponse, error)
}

// ConversationView is one row of the admin conversation list.
type ConversationView struct {
	dto.ConversationResponse
	Online bool
}

type ReconcilerConfig struct {
	Interval time.Duration
	Now      func() time.Time
	// OnChange receives a snapshot after every change to the list.
	OnChange func([]ConversationView)
}

// Reconciler keeps an admin conversation list eventually equal to the
// server's. A periodic full refetch is authoritative; relay events only
// shorten the delay between a change and its appearance.
type Reconciler struct {
	api ConversationAPI
	cfg ReconcilerConfig

	mu     sync.Mutex
	list   []ConversationView
	online map[string]bool
	// locallyRead holds conversations zeroed by MarkRead, with the time
	// after which a refetch may overwrite them again.
	locallyRead map[string]time.Time
}

func NewReconciler(api ConversationAPI, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		api:         api,
		cfg:         cfg,
		online:      make(map[string]bool),
		locallyRead: make(map[string]time.Time),
	}
}

// Snapshot returns a copy of the current list, newest first.
func (r *Reconciler) Snapshot() []ConversationView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() []ConversationView {
	out := make([]ConversationView, len(r.list))
	copy(out, r.list)
	return out
}

// Refresh replaces the list with the server's conversations that have at
// least one message.
func (r *Reconciler) Refresh(ctx context.Context) error {
	fetched, err := r.api.ListConversations(ctx)
	if err != nil {
		return err
	}

	now := r.cfg.Now()
	r.mu.Lock()
	list := make([]ConversationView, 0, len(fetched))
	for _, c := range fetched {
		if c.LastMessage == "" {
			continue
		}
		if until, ok := r.locallyRead[c.ConversationID]; ok {
			switch {
			case c.UnreadCount == 0 || now.After(until):
				delete(r.locallyRead, c.ConversationID)
			default:
				c.UnreadCount = 0
			}
		}
		list = append(list, ConversationView{ConversationResponse: c, Online: r.online[c.ConversationID]})
	}
	sortByUpdated(list)
	r.list = list
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(snapshot)
	return nil
}

// Apply folds one relay event into the list. Unrelated events are ignored.
func (r *Reconciler) Apply(ev event.Event) {
	r.mu.Lock()
	changed := false
	switch e := ev.(type) {
	case event.ConversationCreated:
		if r.indexLocked(e.ConversationID) < 0 && e.LastMessage != "" {
			r.list = append(r.list, ConversationView{
				ConversationResponse: dto.ConversationResponse{
					ConversationID: e.ConversationID,
					AnonymousToken: e.AnonymousToken,
					LastMessage:    e.LastMessage,
					HasMessages:    true,
					Status:         string(model.ConversationStatusOpen),
					CreatedAt:      e.CreatedAt,
					UpdatedAt:      e.CreatedAt,
				},
				Online: r.online[e.ConversationID],
			})
			changed = true
		}

	case event.ConversationUpdated:
		if e.LastMessage == "" {
			break
		}
		i := r.indexLocked(e.ConversationID)
		if i < 0 {
			r.list = append(r.list, ConversationView{
				ConversationResponse: dto.ConversationResponse{
					ConversationID: e.ConversationID,
					Status:         string(model.ConversationStatusOpen),
					CreatedAt:      e.UpdatedAt,
				},
				Online: r.online[e.ConversationID],
			})
			i = len(r.list) - 1
		}
		c := &r.list[i]
		c.LastMessage = e.LastMessage
		c.UnreadCount = e.UnreadCount
		c.HasMessages = true
		if e.AnonymousToken != "" {
			c.AnonymousToken = e.AnonymousToken
		}
		if e.UpdatedAt != "" {
			c.UpdatedAt = e.UpdatedAt
		}
		if e.UnreadCount > 0 {
			delete(r.locallyRead, e.ConversationID)
		}
		changed = true

	case event.ConversationClosed:
		if i := r.indexLocked(e.ConversationID); i >= 0 {
			r.list[i].IsClosed = true
			r.list[i].Status = string(model.ConversationStatusClosed)
			changed = true
		}

	case event.UserOnline:
		changed = r.setOnlineLocked(e.ConversationID, true)

	case event.UserOffline:
		changed = r.setOnlineLocked(e.ConversationID, false)
	}

	if !changed {
		r.mu.Unlock()
		return
	}
	sortByUpdated(r.list)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(snapshot)
}

// MarkRead zeroes the unread count locally before the request completes and
// keeps it zeroed across refetches for two refresh intervals.
func (r *Reconciler) MarkRead(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	r.locallyRead[conversationID] = r.cfg.Now().Add(2 * r.cfg.Interval)
	if i := r.indexLocked(conversationID); i >= 0 {
		r.list[i].UnreadCount = 0
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.changed(snapshot)

	_, err := r.api.MarkConversationRead(ctx, conversationID)
	return err
}

// Run refreshes on a fixed interval and applies events as they arrive.
// A nil events channel disables push.
func (r *Reconciler) Run(ctx context.Context, events <-chan event.Event) error {
	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("conversation refresh failed")
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("conversation refresh failed")
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.Apply(ev)
		}
	}
}

func (r *Reconciler) indexLocked(conversationID string) int {
	for i := range r.list {
		if r.list[i].ConversationID == conversationID {
			return i
		}
	}
	return -1
}

func (r *Reconciler) setOnlineLocked(conversationID string, online bool) bool {
	if r.online[conversationID] == online {
		return false
	}
	if online {
		r.online[conversationID] = true
	} else {
		delete(r.online, conversationID)
	}
	if i := r.indexLocked(conversationID); i >= 0 {
		r.list[i].Online = online
	}
	return true
}

func (r *Reconciler) changed(snapshot []ConversationView) {
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(snapshot)
	}
}

func sortByUpdated(list []ConversationView) {
	sort.SliceStable(list, func(i, j int) bool {
		return parseTime(list[i].UpdatedAt).After(parseTime(list[j].UpdatedAt))
	})
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
