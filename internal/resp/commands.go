package resp

import (
	"qstore/internal/intern"
	"qstore/internal/notify"
	"qstore/internal/qerr"
	"qstore/internal/schema"
	"qstore/internal/store"
)

// Opcode names every store operation in spec.md §4.C gets, plus the
// two wire-only opcodes supplementing it (§4 of SPEC_FULL.md).
const (
	OpRead                  = "READ"
	OpWrite                 = "WRITE"
	OpCreateEntity          = "CREATE_ENTITY"
	OpDeleteEntity          = "DELETE_ENTITY"
	OpGetEntityType         = "GET_ENTITY_TYPE"
	OpResolveEntityType     = "RESOLVE_ENTITY_TYPE"
	OpGetFieldType          = "GET_FIELD_TYPE"
	OpResolveFieldType      = "RESOLVE_FIELD_TYPE"
	OpGetEntitySchema       = "GET_ENTITY_SCHEMA"
	OpUpdateSchema          = "UPDATE_SCHEMA"
	OpGetFieldSchema        = "GET_FIELD_SCHEMA"
	OpEntityExists          = "ENTITY_EXISTS"
	OpFieldExists           = "FIELD_EXISTS"
	OpResolveIndirection    = "RESOLVE_INDIRECTION"
	OpFindEntities          = "FIND_ENTITIES"
	OpFindEntitiesPaginated = "FIND_ENTITIES_PAGINATED"
	OpFindEntitiesExact     = "FIND_ENTITIES_EXACT"
	OpGetEntityTypes        = "GET_ENTITY_TYPES"
	OpGetEntityTypesPaged   = "GET_ENTITY_TYPES_PAGINATED"
	OpTakeSnapshot          = "TAKE_SNAPSHOT"
	OpRegisterNotification  = "REGISTER_NOTIFICATION"
	OpUnregisterNotify      = "UNREGISTER_NOTIFICATION"
	OpPeerHandshake         = "PEER_HANDSHAKE"
)

// ProtocolVersion is echoed by PEER_HANDSHAKE.
const ProtocolVersion int64 = 1

// EncodeValue renders a schema.Value as a RESP array whose first
// element is an integer variant discriminant, per spec.md §4.F.
func EncodeValue(v schema.Value) Value {
	switch v.Variant {
	case schema.VariantBlob:
		return NewArray([]Value{NewInteger(int64(v.Variant)), NewBulk(v.Blob)})
	case schema.VariantBool:
		b := int64(0)
		if v.Bool {
			b = 1
		}
		return NewArray([]Value{NewInteger(int64(v.Variant)), NewInteger(b)})
	case schema.VariantChoice:
		return NewArray([]Value{NewInteger(int64(v.Variant)), NewInteger(v.Choice)})
	case schema.VariantEntityList:
		elems := make([]Value, len(v.List))
		for i, id := range v.List {
			elems[i] = NewInteger(int64(id))
		}
		return NewArray([]Value{NewInteger(int64(v.Variant)), NewArray(elems)})
	case schema.VariantEntityReference:
		if v.Ref == nil {
			return NewArray([]Value{NewInteger(int64(v.Variant)), NewNullBulk()})
		}
		return NewArray([]Value{NewInteger(int64(v.Variant)), NewInteger(int64(*v.Ref))})
	case schema.VariantFloat:
		return NewArray([]Value{NewInteger(int64(v.Variant)), NewBulkString(formatFloat(v.Float))})
	case schema.VariantInt:
		return NewArray([]Value{NewInteger(int64(v.Variant)), NewInteger(v.Int)})
	case schema.VariantString:
		return NewArray([]Value{NewInteger(int64(v.Variant)), NewBulkString(v.Str)})
	case schema.VariantTimestamp:
		return NewArray([]Value{NewInteger(int64(v.Variant)), NewInteger(int64(v.Timestamp))})
	default:
		return NewNullArray()
	}
}

// DecodeValue is the inverse of EncodeValue. Unknown discriminants
// are rejected, per spec.md §4.F.
func DecodeValue(v Value) (schema.Value, error) {
	if v.Kind != Array || v.IsNull || len(v.Array) != 2 {
		return schema.Value{}, qerr.ProtocolErr("malformed value frame")
	}
	if v.Array[0].Kind != Integer {
		return schema.Value{}, qerr.ProtocolErr("value frame missing variant discriminant")
	}
	variant := schema.Variant(v.Array[0].Int)
	payload := v.Array[1]

	switch variant {
	case schema.VariantBlob:
		return schema.BlobValue(payload.Bulk), nil
	case schema.VariantBool:
		return schema.BoolValue(payload.Int != 0), nil
	case schema.VariantChoice:
		return schema.ChoiceValue(payload.Int), nil
	case schema.VariantEntityList:
		ids := make([]intern.EntityId, len(payload.Array))
		for i, e := range payload.Array {
			ids[i] = intern.EntityId(e.Int)
		}
		return schema.EntityListValue(ids), nil
	case schema.VariantEntityReference:
		if payload.Kind == BulkString && payload.IsNull {
			return schema.EntityRefValue(nil), nil
		}
		id := intern.EntityId(payload.Int)
		return schema.EntityRefValue(&id), nil
	case schema.VariantFloat:
		f, err := parseFloat(string(payload.Bulk))
		if err != nil {
			return schema.Value{}, qerr.ProtocolErr("invalid float payload: %v", err)
		}
		return schema.FloatValue(f), nil
	case schema.VariantInt:
		return schema.IntValue(payload.Int), nil
	case schema.VariantString:
		return schema.StringValue(string(payload.Bulk)), nil
	case schema.VariantTimestamp:
		return schema.TimestampValue(uint64(payload.Int)), nil
	default:
		return schema.Value{}, qerr.ProtocolErr("unknown value variant %d", variant)
	}
}

func encodeFieldPath(path []intern.FieldType) Value {
	elems := make([]Value, len(path))
	for i, f := range path {
		elems[i] = NewInteger(int64(f))
	}
	return NewArray(elems)
}

func decodeFieldPath(v Value) ([]intern.FieldType, error) {
	if v.Kind != Array {
		return nil, qerr.ProtocolErr("expected array for field path")
	}
	path := make([]intern.FieldType, len(v.Array))
	for i, e := range v.Array {
		if e.Kind != Integer {
			return nil, qerr.ProtocolErr("field path element must be an integer")
		}
		path[i] = intern.FieldType(e.Int)
	}
	return path, nil
}

func EncodeEntityID(id intern.EntityId) Value { return NewInteger(int64(id)) }

func DecodeEntityID(v Value) (intern.EntityId, error) {
	if v.Kind != Integer {
		return 0, qerr.ProtocolErr("expected integer entity id")
	}
	return intern.EntityId(v.Int), nil
}

func EncodePageOpts(opts store.PageOpts) Value {
	cursor := NewNullBulk()
	if opts.Cursor != nil {
		cursor = NewInteger(int64(*opts.Cursor))
	}
	return NewArray([]Value{NewInteger(int64(opts.Limit)), cursor})
}

func DecodePageOpts(v Value) (store.PageOpts, error) {
	if v.Kind != Array || len(v.Array) != 2 {
		return store.PageOpts{}, qerr.ProtocolErr("malformed page opts")
	}
	opts := store.PageOpts{Limit: int(v.Array[0].Int)}
	if !(v.Array[1].Kind == BulkString && v.Array[1].IsNull) {
		c := uint64(v.Array[1].Int)
		opts.Cursor = &c
	}
	return opts, nil
}

// EncodeNotificationRecord renders a notify.Record for delivery over
// the wire as a server-initiated frame, per spec.md §4.F/§4.G.
func EncodeNotificationRecord(rec notify.Record) Value {
	var writer Value = NewNullBulk()
	if rec.Writer != nil {
		writer = EncodeEntityID(*rec.Writer)
	}
	ctx := make([]Value, len(rec.Context))
	for i, c := range rec.Context {
		found := NewInteger(0)
		if c.Found {
			found = NewInteger(1)
		}
		ctx[i] = NewArray([]Value{encodeFieldPath(c.Path), EncodeValue(c.Value), found})
	}
	return NewArray([]Value{
		NewSimpleString("NOTIFY"),
		EncodeEntityID(rec.EntityID),
		NewInteger(int64(rec.FieldType)),
		EncodeValue(rec.Current),
		EncodeValue(rec.Previous),
		NewInteger(int64(rec.WriteTime)),
		writer,
		NewArray(ctx),
	})
}

// IsNotification reports whether v is a server-initiated NOTIFY frame
// rather than a response to a pending request, so a client can
// demultiplex it per spec.md §4.G.
func IsNotification(v Value) bool {
	return v.Kind == Array && len(v.Array) > 0 && v.Array[0].Kind == SimpleString && v.Array[0].Str == "NOTIFY"
}

// DecodeNotificationRecord is the inverse of EncodeNotificationRecord.
func DecodeNotificationRecord(v Value) (notify.Record, error) {
	if !IsNotification(v) || len(v.Array) != 8 {
		return notify.Record{}, qerr.ProtocolErr("malformed NOTIFY frame")
	}
	entityID, err := DecodeEntityID(v.Array[1])
	if err != nil {
		return notify.Record{}, err
	}
	current, err := DecodeValue(v.Array[3])
	if err != nil {
		return notify.Record{}, err
	}
	previous, err := DecodeValue(v.Array[4])
	if err != nil {
		return notify.Record{}, err
	}
	rec := notify.Record{
		EntityID:  entityID,
		FieldType: intern.FieldType(v.Array[2].Int),
		Current:   current,
		Previous:  previous,
		WriteTime: uint64(v.Array[5].Int),
	}
	if !(v.Array[6].Kind == BulkString && v.Array[6].IsNull) {
		w, err := DecodeEntityID(v.Array[6])
		if err != nil {
			return notify.Record{}, err
		}
		rec.Writer = &w
	}
	ctxArr := v.Array[7].Array
	rec.Context = make([]notify.ContextValue, len(ctxArr))
	for i, cv := range ctxArr {
		if cv.Kind != Array || len(cv.Array) != 3 {
			return notify.Record{}, qerr.ProtocolErr("malformed NOTIFY context entry")
		}
		path, err := decodeFieldPath(cv.Array[0])
		if err != nil {
			return notify.Record{}, err
		}
		val, err := DecodeValue(cv.Array[1])
		if err != nil {
			return notify.Record{}, err
		}
		rec.Context[i] = notify.ContextValue{Path: path, Value: val, Found: cv.Array[2].Int != 0}
	}
	return rec, nil
}
