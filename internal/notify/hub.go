// Package notify implements the Notification Engine (spec.md §4.E):
// ById and ByType subscription tables, inheritance-aware dispatch,
// context-field capture, and bounded non-blocking delivery queues.
package notify

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"qstore/internal/intern"
	"qstore/internal/qerr"
	"qstore/internal/schema"
)

// Trigger is the policy controlling whether an unchanged write still
// notifies.
type Trigger uint8

const (
	Always Trigger = iota
	OnChange
)

// Token is the opaque handle returned at registration and used to
// unsubscribe. Grounded on original_source's NotifyToken(Uuid).
type Token uuid.UUID

func newToken() Token { return Token(uuid.New()) }

func (t Token) String() string { return uuid.UUID(t).String() }

// Config is the subscriber-supplied registration configuration.
type Config struct {
	Trigger       Trigger
	ContextFields [][]intern.FieldType
}

// ContextValue is one resolved (or unresolved) context field in a
// delivered Record.
type ContextValue struct {
	Path  []intern.FieldType
	Value schema.Value
	Found bool
}

// Record is one delivered notification.
type Record struct {
	EntityID  intern.EntityId
	FieldType intern.FieldType
	Current   schema.Value
	Previous  schema.Value
	WriteTime uint64
	Writer    *intern.EntityId
	Context   []ContextValue
}

type subscription struct {
	token  Token
	config Config
	queue  *Queue
	// key identifies which table (and which key within it) owns this
	// subscription, so Unregister can find and remove it there too.
	byID   bool
	entity intern.EntityId
	etype  intern.EntityType
	field  intern.FieldType
}

type idKey struct {
	entity intern.EntityId
	field  intern.FieldType
}

type typeKey struct {
	etype intern.EntityType
	field intern.FieldType
}

// ContextResolver resolves a context field path starting at entity,
// following indirection. Supplied by Store so this package never
// depends on store's indirection logic directly.
type ContextResolver func(entity intern.EntityId, path []intern.FieldType) (schema.Value, bool)

// Hub is the Notification Engine.
type Hub struct {
	mu          sync.RWMutex
	byID        map[idKey][]*subscription
	byType      map[typeKey][]*subscription
	byToken     map[Token]*subscription
	queueCap    int
}

func NewHub(queueCapacity int) *Hub {
	return &Hub{
		byID:     make(map[idKey][]*subscription),
		byType:   make(map[typeKey][]*subscription),
		byToken:  make(map[Token]*subscription),
		queueCap: queueCapacity,
	}
}

// RegisterByID attaches a subscription directly to (entity, field).
// field must be a single, direct FieldType — indirection paths are
// rejected for the subscribed field itself (context fields MAY use
// indirection).
func (h *Hub) RegisterByID(entity intern.EntityId, field intern.FieldType, cfg Config) (Token, *Queue, error) {
	sub := &subscription{
		token:  newToken(),
		config: cfg,
		queue:  NewQueue(h.queueCap),
		byID:   true,
		entity: entity,
		field:  field,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	k := idKey{entity, field}
	h.byID[k] = append(h.byID[k], sub)
	h.byToken[sub.token] = sub
	return sub.token, sub.queue, nil
}

// RegisterByType attaches a subscription to every entity of etype (or
// a descendant, via inheritance-aware dispatch) for a direct field.
func (h *Hub) RegisterByType(etype intern.EntityType, field intern.FieldType, cfg Config) (Token, *Queue, error) {
	sub := &subscription{
		token:  newToken(),
		config: cfg,
		queue:  NewQueue(h.queueCap),
		byID:   false,
		etype:  etype,
		field:  field,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	k := typeKey{etype, field}
	h.byType[k] = append(h.byType[k], sub)
	h.byToken[sub.token] = sub
	return sub.token, sub.queue, nil
}

// Unregister removes a subscription by token. Idempotent: unregistering
// an unknown or already-removed token is not an error.
func (h *Hub) Unregister(token Token) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.byToken[token]
	if !ok {
		return nil
	}
	delete(h.byToken, token)
	if sub.byID {
		k := idKey{sub.entity, sub.field}
		h.byID[k] = removeSub(h.byID[k], sub)
	} else {
		k := typeKey{sub.etype, sub.field}
		h.byType[k] = removeSub(h.byType[k], sub)
	}
	return nil
}

func removeSub(subs []*subscription, target *subscription) []*subscription {
	out := subs[:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// Dispatch delivers a committed write to (entity, field) to every
// matching subscriber. ancestors is type(entity) followed by its
// ancestors (closest first), already computed by the caller via the
// Schema Registry, since Hub does not know about schemas.
//
// Per spec.md §4.E: OnChange subscribers skip no-op writes; ById and
// every ancestor's ByType group are collected (duplicates across
// layers are delivered); context fields are resolved best-effort.
func (h *Hub) Dispatch(rec Record, ancestors []intern.EntityType, resolve ContextResolver) error {
	onChange := rec.Current.Equal(rec.Previous)

	h.mu.RLock()
	idSubs := append([]*subscription(nil), h.byID[idKey{rec.EntityID, rec.FieldType}]...)
	var typeGroups [][]*subscription
	for _, a := range ancestors {
		typeGroups = append(typeGroups, append([]*subscription(nil), h.byType[typeKey{a, rec.FieldType}]...))
	}
	h.mu.RUnlock()

	var g errgroup.Group

	g.Go(func() error {
		deliverGroup(idSubs, rec, onChange, resolve)
		return nil
	})
	for _, group := range typeGroups {
		group := group
		g.Go(func() error {
			deliverGroup(group, rec, onChange, resolve)
			return nil
		})
	}

	return g.Wait()
}

func deliverGroup(subs []*subscription, rec Record, onChange bool, resolve ContextResolver) {
	for _, sub := range subs {
		if sub.config.Trigger == OnChange && onChange {
			continue
		}
		r := rec
		if len(sub.config.ContextFields) > 0 {
			r.Context = make([]ContextValue, len(sub.config.ContextFields))
			for i, path := range sub.config.ContextFields {
				v, ok := resolve(rec.EntityID, path)
				r.Context[i] = ContextValue{Path: path, Value: v, Found: ok}
			}
		}
		sub.queue.Push(r)
	}
}

// Overflowed reports whether the subscription for token has dropped
// records since the last Drain.
func (h *Hub) Overflowed(token Token) (bool, error) {
	h.mu.RLock()
	sub, ok := h.byToken[token]
	h.mu.RUnlock()
	if !ok {
		return false, qerr.NotFoundErr("unknown subscription token")
	}
	return sub.queue.Overflowed(), nil
}
