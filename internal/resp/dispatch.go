package resp

import (
	"qstore/internal/intern"
	"qstore/internal/qerr"
	"qstore/internal/schema"
	"qstore/internal/store"
)

func bulk(s string) Value { return NewBulkString(s) }

func encodeOptionalTimestamp(ts *uint64) Value {
	if ts == nil {
		return NewNullBulk()
	}
	return NewInteger(int64(*ts))
}

func decodeOptionalTimestamp(v Value) *uint64 {
	if v.Kind == BulkString && v.IsNull {
		return nil
	}
	ts := uint64(v.Int)
	return &ts
}

// EncodeCommand renders op as a RESP command array: a bulk-string
// opcode followed by command-specific arguments. Used by the client
// proxy to serialize an outgoing request.
func EncodeCommand(op store.Request) (Value, error) {
	switch r := op.(type) {
	case *store.ReadRequest:
		return NewArray([]Value{bulk(OpRead), EncodeEntityID(r.EntityID), encodeFieldPath(r.FieldPath)}), nil

	case *store.WriteRequest:
		ts := NewNullBulk()
		if r.WriteTime != nil {
			ts = NewInteger(int64(*r.WriteTime))
		}
		writer := NewNullBulk()
		if r.WriterID != nil {
			writer = EncodeEntityID(*r.WriterID)
		}
		return NewArray([]Value{
			bulk(OpWrite), EncodeEntityID(r.EntityID), encodeFieldPath(r.FieldPath),
			EncodeValue(r.Value), NewInteger(int64(r.PushCondition)), NewInteger(int64(r.AdjustBehavior)),
			ts, writer,
		}), nil

	case *store.CreateRequest:
		parent := NewNullBulk()
		if r.ParentID != nil {
			parent = EncodeEntityID(*r.ParentID)
		}
		return NewArray([]Value{bulk(OpCreateEntity), NewInteger(int64(r.EntityType)), parent, bulk(r.Name), encodeOptionalTimestamp(r.Timestamp)}), nil

	case *store.DeleteRequest:
		return NewArray([]Value{bulk(OpDeleteEntity), EncodeEntityID(r.EntityID), encodeOptionalTimestamp(r.Timestamp)}), nil

	case *store.SchemaUpdateRequest:
		return NewArray([]Value{bulk(OpUpdateSchema), EncodeSchema(r.Schema), encodeOptionalTimestamp(r.Timestamp)}), nil

	case *store.GetEntityTypeRequest:
		return NewArray([]Value{bulk(OpGetEntityType), bulk(r.Name)}), nil
	case *store.ResolveEntityTypeRequest:
		return NewArray([]Value{bulk(OpResolveEntityType), NewInteger(int64(r.Type))}), nil
	case *store.GetFieldTypeRequest:
		return NewArray([]Value{bulk(OpGetFieldType), bulk(r.Name)}), nil
	case *store.ResolveFieldTypeRequest:
		return NewArray([]Value{bulk(OpResolveFieldType), NewInteger(int64(r.Field))}), nil
	case *store.GetEntitySchemaRequest:
		return NewArray([]Value{bulk(OpGetEntitySchema), NewInteger(int64(r.Type))}), nil
	case *store.GetCompleteEntitySchemaRequest:
		return NewArray([]Value{bulk(OpGetEntitySchema), NewInteger(int64(r.Type)), NewInteger(1)}), nil
	case *store.GetFieldSchemaRequest:
		return NewArray([]Value{bulk(OpGetFieldSchema), NewInteger(int64(r.Type)), NewInteger(int64(r.Field))}), nil
	case *store.EntityExistsRequest:
		return NewArray([]Value{bulk(OpEntityExists), EncodeEntityID(r.EntityID)}), nil
	case *store.FieldExistsRequest:
		return NewArray([]Value{bulk(OpFieldExists), EncodeEntityID(r.EntityID), NewInteger(int64(r.Field))}), nil
	case *store.ResolveIndirectionRequest:
		return NewArray([]Value{bulk(OpResolveIndirection), EncodeEntityID(r.StartID), encodeFieldPath(r.FieldPath)}), nil

	case *store.FindEntitiesRequest:
		return NewArray([]Value{bulk(OpFindEntitiesPaginated), NewInteger(int64(r.EntityType)), EncodePageOpts(r.PageOpts), bulk(r.Filter)}), nil
	case *store.FindEntitiesExactRequest:
		return NewArray([]Value{bulk(OpFindEntitiesExact), NewInteger(int64(r.EntityType)), EncodePageOpts(r.PageOpts), bulk(r.Filter)}), nil
	case *store.GetEntityTypesRequest:
		return NewArray([]Value{bulk(OpGetEntityTypesPaged), EncodePageOpts(r.PageOpts)}), nil

	default:
		return Value{}, qerr.InternalErr("unsupported request type %T", op)
	}
}

// DecodeCommand is the server-side inverse of EncodeCommand: given a
// decoded command array, reconstructs a store.Request ready to pass
// to Store.Execute.
func DecodeCommand(cmd Value) (store.Request, error) {
	if cmd.Kind != Array || len(cmd.Array) == 0 || cmd.Array[0].Kind != BulkString {
		return nil, qerr.ProtocolErr("malformed command frame")
	}
	opname := string(cmd.Array[0].Bulk)
	args := cmd.Array[1:]

	switch opname {
	case OpRead:
		id, err := DecodeEntityID(args[0])
		if err != nil {
			return nil, err
		}
		path, err := decodeFieldPath(args[1])
		if err != nil {
			return nil, err
		}
		return &store.ReadRequest{EntityID: id, FieldPath: path}, nil

	case OpWrite:
		id, err := DecodeEntityID(args[0])
		if err != nil {
			return nil, err
		}
		path, err := decodeFieldPath(args[1])
		if err != nil {
			return nil, err
		}
		val, err := DecodeValue(args[2])
		if err != nil {
			return nil, err
		}
		req := &store.WriteRequest{
			EntityID:       id,
			FieldPath:      path,
			Value:          val,
			PushCondition:  store.PushCondition(args[3].Int),
			AdjustBehavior: store.AdjustBehavior(args[4].Int),
		}
		if !(args[5].Kind == BulkString && args[5].IsNull) {
			ts := uint64(args[5].Int)
			req.WriteTime = &ts
		}
		if !(args[6].Kind == BulkString && args[6].IsNull) {
			w, err := DecodeEntityID(args[6])
			if err != nil {
				return nil, err
			}
			req.WriterID = &w
		}
		return req, nil

	case OpCreateEntity:
		req := &store.CreateRequest{EntityType: intern.EntityType(args[0].Int), Name: string(args[2].Bulk)}
		if !(args[1].Kind == BulkString && args[1].IsNull) {
			p, err := DecodeEntityID(args[1])
			if err != nil {
				return nil, err
			}
			req.ParentID = &p
		}
		if len(args) > 3 {
			req.Timestamp = decodeOptionalTimestamp(args[3])
		}
		return req, nil

	case OpDeleteEntity:
		id, err := DecodeEntityID(args[0])
		if err != nil {
			return nil, err
		}
		req := &store.DeleteRequest{EntityID: id}
		if len(args) > 1 {
			req.Timestamp = decodeOptionalTimestamp(args[1])
		}
		return req, nil

	case OpUpdateSchema:
		s, err := DecodeSchema(args[0])
		if err != nil {
			return nil, err
		}
		req := &store.SchemaUpdateRequest{Schema: s}
		if len(args) > 1 {
			req.Timestamp = decodeOptionalTimestamp(args[1])
		}
		return req, nil

	case OpGetEntityType:
		return &store.GetEntityTypeRequest{Name: string(args[0].Bulk)}, nil
	case OpResolveEntityType:
		return &store.ResolveEntityTypeRequest{Type: intern.EntityType(args[0].Int)}, nil
	case OpGetFieldType:
		return &store.GetFieldTypeRequest{Name: string(args[0].Bulk)}, nil
	case OpResolveFieldType:
		return &store.ResolveFieldTypeRequest{Field: intern.FieldType(args[0].Int)}, nil
	case OpGetEntitySchema:
		t := intern.EntityType(args[0].Int)
		if len(args) > 1 && args[1].Kind == Integer && args[1].Int == 1 {
			return &store.GetCompleteEntitySchemaRequest{Type: t}, nil
		}
		return &store.GetEntitySchemaRequest{Type: t}, nil
	case OpGetFieldSchema:
		return &store.GetFieldSchemaRequest{Type: intern.EntityType(args[0].Int), Field: intern.FieldType(args[1].Int)}, nil
	case OpEntityExists:
		id, err := DecodeEntityID(args[0])
		if err != nil {
			return nil, err
		}
		return &store.EntityExistsRequest{EntityID: id}, nil
	case OpFieldExists:
		id, err := DecodeEntityID(args[0])
		if err != nil {
			return nil, err
		}
		return &store.FieldExistsRequest{EntityID: id, Field: intern.FieldType(args[1].Int)}, nil
	case OpResolveIndirection:
		id, err := DecodeEntityID(args[0])
		if err != nil {
			return nil, err
		}
		path, err := decodeFieldPath(args[1])
		if err != nil {
			return nil, err
		}
		return &store.ResolveIndirectionRequest{StartID: id, FieldPath: path}, nil

	case OpFindEntitiesPaginated:
		opts, err := DecodePageOpts(args[1])
		if err != nil {
			return nil, err
		}
		return &store.FindEntitiesRequest{EntityType: intern.EntityType(args[0].Int), PageOpts: opts, Filter: string(args[2].Bulk)}, nil
	case OpFindEntitiesExact:
		opts, err := DecodePageOpts(args[1])
		if err != nil {
			return nil, err
		}
		return &store.FindEntitiesExactRequest{EntityType: intern.EntityType(args[0].Int), PageOpts: opts, Filter: string(args[2].Bulk)}, nil
	case OpGetEntityTypesPaged:
		opts, err := DecodePageOpts(args[0])
		if err != nil {
			return nil, err
		}
		return &store.GetEntityTypesRequest{PageOpts: opts}, nil

	default:
		return nil, qerr.ProtocolErr("unknown opcode %q", opname)
	}
}

// EncodeResult renders the post-Execute result fields of op as the
// response frame its opcode promises.
func EncodeResult(op store.Request) Value {
	switch r := op.(type) {
	case *store.ReadRequest:
		writer := NewNullBulk()
		if r.Writer != nil {
			writer = EncodeEntityID(*r.Writer)
		}
		return NewArray([]Value{EncodeValue(r.Value), NewInteger(int64(r.WriteTime)), writer})
	case *store.WriteRequest:
		processed := int64(0)
		if r.WriteProcessed {
			processed = 1
		}
		return NewInteger(processed)
	case *store.CreateRequest:
		return EncodeEntityID(r.CreatedEntityID)
	case *store.DeleteRequest:
		return NewSimpleString("OK")
	case *store.SchemaUpdateRequest:
		return NewSimpleString("OK")
	case *store.GetEntityTypeRequest:
		return encodeFoundInt(r.Found, int64(r.Type))
	case *store.ResolveEntityTypeRequest:
		return encodeFoundStr(r.Found, r.Name)
	case *store.GetFieldTypeRequest:
		return encodeFoundInt(r.Found, int64(r.Field))
	case *store.ResolveFieldTypeRequest:
		return encodeFoundStr(r.Found, r.Name)
	case *store.GetEntitySchemaRequest:
		if !r.Found {
			return NewNullArray()
		}
		return EncodeSchema(r.Schema)
	case *store.GetCompleteEntitySchemaRequest:
		if !r.Found {
			return NewNullArray()
		}
		return EncodeSchema(r.Schema)
	case *store.GetFieldSchemaRequest:
		if !r.Found {
			return NewNullArray()
		}
		return EncodeFieldDescriptor(r.Descriptor)
	case *store.EntityExistsRequest:
		return encodeBool(r.Exists)
	case *store.FieldExistsRequest:
		return encodeBool(r.Exists)
	case *store.ResolveIndirectionRequest:
		return NewArray([]Value{EncodeEntityID(r.TerminalID), NewInteger(int64(r.TerminalField))})
	case *store.FindEntitiesRequest:
		return encodePageResultIDs(r.Result)
	case *store.FindEntitiesExactRequest:
		return encodePageResultIDs(r.Result)
	case *store.GetEntityTypesRequest:
		items := make([]Value, len(r.Result.Items))
		for i, t := range r.Result.Items {
			items[i] = NewInteger(int64(t))
		}
		return encodePageResult(items, r.Result.Total, r.Result.NextCursor)
	default:
		return NewError(string(qerr.Internal) + ": unsupported response type")
	}
}

func encodeFoundInt(found bool, v int64) Value {
	if !found {
		return NewNullBulk()
	}
	return NewInteger(v)
}

func encodeFoundStr(found bool, s string) Value {
	if !found {
		return NewNullBulk()
	}
	return NewBulkString(s)
}

func encodeBool(b bool) Value {
	if b {
		return NewInteger(1)
	}
	return NewInteger(0)
}

func encodePageResultIDs(r store.PageResult[intern.EntityId]) Value {
	items := make([]Value, len(r.Items))
	for i, id := range r.Items {
		items[i] = EncodeEntityID(id)
	}
	return encodePageResult(items, r.Total, r.NextCursor)
}

func encodePageResult(items []Value, total int, cursor *uint64) Value {
	next := NewNullBulk()
	if cursor != nil {
		next = NewInteger(int64(*cursor))
	}
	return NewArray([]Value{NewArray(items), NewInteger(int64(total)), next})
}

// ApplyResult is the client-side inverse of EncodeResult: populates
// op's result fields from the decoded response frame v.
func ApplyResult(op store.Request, v Value) error {
	switch r := op.(type) {
	case *store.ReadRequest:
		if v.Kind != Array || len(v.Array) != 3 {
			return qerr.ProtocolErr("malformed READ response")
		}
		val, err := DecodeValue(v.Array[0])
		if err != nil {
			return err
		}
		r.Value = val
		r.WriteTime = uint64(v.Array[1].Int)
		if !(v.Array[2].Kind == BulkString && v.Array[2].IsNull) {
			w, err := DecodeEntityID(v.Array[2])
			if err != nil {
				return err
			}
			r.Writer = &w
		}
		return nil
	case *store.WriteRequest:
		r.WriteProcessed = v.Int != 0
		return nil
	case *store.CreateRequest:
		id, err := DecodeEntityID(v)
		if err != nil {
			return err
		}
		r.CreatedEntityID = id
		return nil
	case *store.DeleteRequest, *store.SchemaUpdateRequest:
		return nil
	case *store.GetEntityTypeRequest:
		r.Found = !(v.Kind == BulkString && v.IsNull)
		if r.Found {
			r.Type = intern.EntityType(v.Int)
		}
		return nil
	case *store.ResolveEntityTypeRequest:
		r.Found = !(v.Kind == BulkString && v.IsNull)
		if r.Found {
			r.Name = string(v.Bulk)
		}
		return nil
	case *store.GetFieldTypeRequest:
		r.Found = !(v.Kind == BulkString && v.IsNull)
		if r.Found {
			r.Field = intern.FieldType(v.Int)
		}
		return nil
	case *store.ResolveFieldTypeRequest:
		r.Found = !(v.Kind == BulkString && v.IsNull)
		if r.Found {
			r.Name = string(v.Bulk)
		}
		return nil
	case *store.GetEntitySchemaRequest:
		r.Found = !(v.Kind == Array && v.IsNull)
		if r.Found {
			s, err := DecodeSchema(v)
			if err != nil {
				return err
			}
			r.Schema = s
		}
		return nil
	case *store.GetCompleteEntitySchemaRequest:
		r.Found = !(v.Kind == Array && v.IsNull)
		if r.Found {
			s, err := DecodeSchema(v)
			if err != nil {
				return err
			}
			r.Schema = s
		}
		return nil
	case *store.GetFieldSchemaRequest:
		r.Found = !(v.Kind == Array && v.IsNull)
		if r.Found {
			fd, err := DecodeFieldDescriptor(v)
			if err != nil {
				return err
			}
			r.Descriptor = fd
		}
		return nil
	case *store.EntityExistsRequest:
		r.Exists = v.Int != 0
		return nil
	case *store.FieldExistsRequest:
		r.Exists = v.Int != 0
		return nil
	case *store.ResolveIndirectionRequest:
		if v.Kind != Array || len(v.Array) != 2 {
			return qerr.ProtocolErr("malformed RESOLVE_INDIRECTION response")
		}
		id, err := DecodeEntityID(v.Array[0])
		if err != nil {
			return err
		}
		r.TerminalID = id
		r.TerminalField = intern.FieldType(v.Array[1].Int)
		return nil
	case *store.FindEntitiesRequest:
		res, err := decodePageResultIDs(v)
		if err != nil {
			return err
		}
		r.Result = res
		return nil
	case *store.FindEntitiesExactRequest:
		res, err := decodePageResultIDs(v)
		if err != nil {
			return err
		}
		r.Result = res
		return nil
	case *store.GetEntityTypesRequest:
		if v.Kind != Array || len(v.Array) != 3 {
			return qerr.ProtocolErr("malformed page result")
		}
		items := make([]intern.EntityType, len(v.Array[0].Array))
		for i, e := range v.Array[0].Array {
			items[i] = intern.EntityType(e.Int)
		}
		r.Result = store.PageResult[intern.EntityType]{Items: items, Total: int(v.Array[1].Int), NextCursor: decodeCursor(v.Array[2])}
		return nil
	default:
		return qerr.InternalErr("unsupported response type %T", op)
	}
}

func decodeCursor(v Value) *uint64 {
	if v.Kind == BulkString && v.IsNull {
		return nil
	}
	c := uint64(v.Int)
	return &c
}

func decodePageResultIDs(v Value) (store.PageResult[intern.EntityId], error) {
	if v.Kind != Array || len(v.Array) != 3 {
		return store.PageResult[intern.EntityId]{}, qerr.ProtocolErr("malformed page result")
	}
	items := make([]intern.EntityId, len(v.Array[0].Array))
	for i, e := range v.Array[0].Array {
		id, err := DecodeEntityID(e)
		if err != nil {
			return store.PageResult[intern.EntityId]{}, err
		}
		items[i] = id
	}
	return store.PageResult[intern.EntityId]{Items: items, Total: int(v.Array[1].Int), NextCursor: decodeCursor(v.Array[2])}, nil
}

// EncodeFieldDescriptor and EncodeSchema render schema metadata for
// GET_ENTITY_SCHEMA / GET_FIELD_SCHEMA responses and the
// UPDATE_SCHEMA command body.
func EncodeFieldDescriptor(fd schema.FieldDescriptor) Value {
	choices := make([]Value, len(fd.Choices))
	for i, c := range fd.Choices {
		choices[i] = NewBulkString(c)
	}
	return NewArray([]Value{
		NewInteger(int64(fd.Field)),
		NewInteger(int64(fd.Variant)),
		EncodeValue(fd.Default),
		NewInteger(int64(fd.Rank)),
		NewArray(choices),
		NewInteger(int64(fd.StorageScope)),
	})
}

func DecodeFieldDescriptor(v Value) (schema.FieldDescriptor, error) {
	if v.Kind != Array || len(v.Array) != 6 {
		return schema.FieldDescriptor{}, qerr.ProtocolErr("malformed field descriptor")
	}
	def, err := DecodeValue(v.Array[2])
	if err != nil {
		return schema.FieldDescriptor{}, err
	}
	choices := make([]string, len(v.Array[4].Array))
	for i, c := range v.Array[4].Array {
		choices[i] = string(c.Bulk)
	}
	return schema.FieldDescriptor{
		Field:        intern.FieldType(v.Array[0].Int),
		Variant:      schema.Variant(v.Array[1].Int),
		Default:      def,
		Rank:         int(v.Array[3].Int),
		Choices:      choices,
		StorageScope: schema.StorageScope(v.Array[5].Int),
	}, nil
}

func EncodeSchema(s schema.Schema) Value {
	parents := make([]Value, len(s.Parents))
	for i, p := range s.Parents {
		parents[i] = NewInteger(int64(p))
	}
	fields := make([]Value, 0, len(s.Fields))
	for _, fd := range s.Fields {
		fields = append(fields, EncodeFieldDescriptor(fd))
	}
	return NewArray([]Value{NewInteger(int64(s.Type)), NewArray(parents), NewArray(fields)})
}

func DecodeSchema(v Value) (schema.Schema, error) {
	if v.Kind != Array || len(v.Array) != 3 {
		return schema.Schema{}, qerr.ProtocolErr("malformed schema frame")
	}
	parents := make([]intern.EntityType, len(v.Array[1].Array))
	for i, p := range v.Array[1].Array {
		parents[i] = intern.EntityType(p.Int)
	}
	fields := make(map[intern.FieldType]schema.FieldDescriptor, len(v.Array[2].Array))
	for _, fv := range v.Array[2].Array {
		fd, err := DecodeFieldDescriptor(fv)
		if err != nil {
			return schema.Schema{}, err
		}
		fields[fd.Field] = fd
	}
	return schema.Schema{Type: intern.EntityType(v.Array[0].Int), Parents: parents, Fields: fields}, nil
}
