package store

import (
	"qstore/internal/intern"
	"qstore/internal/schema"
)

// PushCondition controls whether an unchanged write is applied and
// notified.
type PushCondition uint8

const (
	PushAlways PushCondition = iota
	PushOnChange
)

// AdjustBehavior is the Set/Add/Subtract semantics on a Write.
type AdjustBehavior uint8

const (
	AdjustSet AdjustBehavior = iota
	AdjustAdd
	AdjustSubtract
)

func (a AdjustBehavior) String() string {
	switch a {
	case AdjustSet:
		return "Set"
	case AdjustAdd:
		return "Add"
	case AdjustSubtract:
		return "Subtract"
	default:
		return "Unknown"
	}
}

// Request is one operation in a batch. Concrete types below
// implement it; Store.Execute type-switches on the concrete type,
// following the same "one struct per command" shape as
// original_source/src/data/request.rs's Request enum, since Go has no
// native sum type.
type Request interface {
	isRequest()
}

type ReadRequest struct {
	EntityID  intern.EntityId
	FieldPath []intern.FieldType

	// Result fields, populated by Execute.
	Value     schema.Value
	WriteTime uint64
	Writer    *intern.EntityId
}

type WriteRequest struct {
	EntityID       intern.EntityId
	FieldPath      []intern.FieldType
	Value          schema.Value
	PushCondition  PushCondition
	AdjustBehavior AdjustBehavior
	WriteTime      *uint64 // nil -> store fills from clock
	WriterID       *intern.EntityId

	// WriteProcessed reports whether the write was actually applied
	// (false when PushOnChange suppressed a no-op write).
	WriteProcessed bool
}

type CreateRequest struct {
	EntityType intern.EntityType
	ParentID   *intern.EntityId // nil only for the Root entity
	Name       string
	Timestamp  *uint64

	CreatedEntityID intern.EntityId
}

type DeleteRequest struct {
	EntityID  intern.EntityId
	Timestamp *uint64
}

type SchemaUpdateRequest struct {
	Schema    schema.Schema
	Timestamp *uint64
}

type GetEntityTypeRequest struct {
	Name   string
	Type   intern.EntityType
	Found  bool
}

type ResolveEntityTypeRequest struct {
	Type intern.EntityType
	Name string
	Found bool
}

type GetFieldTypeRequest struct {
	Name  string
	Field intern.FieldType
	Found bool
}

type ResolveFieldTypeRequest struct {
	Field intern.FieldType
	Name  string
	Found bool
}

type GetEntitySchemaRequest struct {
	Type   intern.EntityType
	Schema schema.Schema
	Found  bool
}

type GetCompleteEntitySchemaRequest struct {
	Type   intern.EntityType
	Schema schema.Schema
	Found  bool
}

type GetFieldSchemaRequest struct {
	Type       intern.EntityType
	Field      intern.FieldType
	Descriptor schema.FieldDescriptor
	Found      bool
}

type EntityExistsRequest struct {
	EntityID intern.EntityId
	Exists   bool
}

type FieldExistsRequest struct {
	EntityID intern.EntityId
	Field    intern.FieldType
	Exists   bool
}

type ResolveIndirectionRequest struct {
	StartID   intern.EntityId
	FieldPath []intern.FieldType

	TerminalID    intern.EntityId
	TerminalField intern.FieldType
}

// FindEntitiesRequest finds entities of EntityType or any of its
// descendants (inheritance-aware).
type FindEntitiesRequest struct {
	EntityType intern.EntityType
	PageOpts   PageOpts
	Filter     string // optional predicate DSL; "" means no filter

	Result PageResult[intern.EntityId]
}

// FindEntitiesExactRequest restricts to the exact type.
type FindEntitiesExactRequest struct {
	EntityType intern.EntityType
	PageOpts   PageOpts
	Filter     string

	Result PageResult[intern.EntityId]
}

type GetEntityTypesRequest struct {
	PageOpts PageOpts
	Result   PageResult[intern.EntityType]
}

func (*ReadRequest) isRequest()                   {}
func (*WriteRequest) isRequest()                  {}
func (*CreateRequest) isRequest()                 {}
func (*DeleteRequest) isRequest()                 {}
func (*SchemaUpdateRequest) isRequest()           {}
func (*GetEntityTypeRequest) isRequest()          {}
func (*ResolveEntityTypeRequest) isRequest()      {}
func (*GetFieldTypeRequest) isRequest()           {}
func (*ResolveFieldTypeRequest) isRequest()       {}
func (*GetEntitySchemaRequest) isRequest()        {}
func (*GetCompleteEntitySchemaRequest) isRequest(){}
func (*GetFieldSchemaRequest) isRequest()         {}
func (*EntityExistsRequest) isRequest()           {}
func (*FieldExistsRequest) isRequest()            {}
func (*ResolveIndirectionRequest) isRequest()     {}
func (*FindEntitiesRequest) isRequest()           {}
func (*FindEntitiesExactRequest) isRequest()      {}
func (*GetEntityTypesRequest) isRequest()         {}

// Requests is a batch of operations executed sequentially against the
// Store, plus an optional Originator used only to default WriterID on
// Write requests that don't set one explicitly. Mirrors
// original_source/src/data/request.rs's Requests{requests, originator}.
type Requests struct {
	Ops        []Request
	Originator *intern.EntityId
}

func NewRequests(originator *intern.EntityId, ops ...Request) *Requests {
	return &Requests{Ops: ops, Originator: originator}
}

func (r *Requests) Push(op Request) { r.Ops = append(r.Ops, op) }
func (r *Requests) Len() int         { return len(r.Ops) }
