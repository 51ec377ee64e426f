package schema

import (
	"bytes"

	"qstore/internal/intern"
)

// Variant is the tag of a field's value type. The nine variants are
// fixed by the data model; a tenth is never added without a wire
// protocol version bump.
type Variant uint8

const (
	VariantBlob Variant = iota
	VariantBool
	VariantChoice
	VariantEntityList
	VariantEntityReference
	VariantFloat
	VariantInt
	VariantString
	VariantTimestamp
)

func (v Variant) String() string {
	switch v {
	case VariantBlob:
		return "Blob"
	case VariantBool:
		return "Bool"
	case VariantChoice:
		return "Choice"
	case VariantEntityList:
		return "EntityList"
	case VariantEntityReference:
		return "EntityReference"
	case VariantFloat:
		return "Float"
	case VariantInt:
		return "Int"
	case VariantString:
		return "String"
	case VariantTimestamp:
		return "Timestamp"
	default:
		return "Unknown"
	}
}

// Value is a tagged union over the nine field value variants. Only
// the field matching Variant is meaningful.
type Value struct {
	Variant Variant

	Blob      []byte
	Bool      bool
	Choice    int64
	List      []intern.EntityId
	Ref       *intern.EntityId // nil == None
	Float     float64
	Int       int64
	Str       string
	Timestamp uint64 // nanos since epoch
}

func BlobValue(b []byte) Value           { return Value{Variant: VariantBlob, Blob: b} }
func BoolValue(b bool) Value             { return Value{Variant: VariantBool, Bool: b} }
func ChoiceValue(ord int64) Value        { return Value{Variant: VariantChoice, Choice: ord} }
func EntityListValue(l []intern.EntityId) Value {
	return Value{Variant: VariantEntityList, List: append([]intern.EntityId(nil), l...)}
}
func EntityRefValue(id *intern.EntityId) Value {
	var ref *intern.EntityId
	if id != nil {
		v := *id
		ref = &v
	}
	return Value{Variant: VariantEntityReference, Ref: ref}
}
func FloatValue(f float64) Value     { return Value{Variant: VariantFloat, Float: f} }
func IntValue(i int64) Value         { return Value{Variant: VariantInt, Int: i} }
func StringValue(s string) Value     { return Value{Variant: VariantString, Str: s} }
func TimestampValue(ns uint64) Value { return Value{Variant: VariantTimestamp, Timestamp: ns} }

// Equal implements value-level equality used by PushCondition::Changes.
func (v Value) Equal(o Value) bool {
	if v.Variant != o.Variant {
		return false
	}
	switch v.Variant {
	case VariantBlob:
		return bytes.Equal(v.Blob, o.Blob)
	case VariantBool:
		return v.Bool == o.Bool
	case VariantChoice:
		return v.Choice == o.Choice
	case VariantEntityList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	case VariantEntityReference:
		if (v.Ref == nil) != (o.Ref == nil) {
			return false
		}
		return v.Ref == nil || *v.Ref == *o.Ref
	case VariantFloat:
		return v.Float == o.Float
	case VariantInt:
		return v.Int == o.Int
	case VariantString:
		return v.Str == o.Str
	case VariantTimestamp:
		return v.Timestamp == o.Timestamp
	default:
		return false
	}
}

// Clone returns a deep copy so stored cells are never aliased with a
// caller's mutable slice/byte backing array.
func (v Value) Clone() Value {
	out := v
	if v.Blob != nil {
		out.Blob = append([]byte(nil), v.Blob...)
	}
	if v.List != nil {
		out.List = append([]intern.EntityId(nil), v.List...)
	}
	if v.Ref != nil {
		id := *v.Ref
		out.Ref = &id
	}
	return out
}
