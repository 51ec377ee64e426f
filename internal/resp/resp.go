// Package resp implements RESP2 framing (spec.md §4.F), translated
// from the zero-copy Rust parser in
// original_source/src/data/resp.rs into a bufio.Reader-based decoder
// and a []byte-based encoder.
package resp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"qstore/internal/qerr"
)

// Kind tags a decoded RESP value.
type Kind uint8

const (
	SimpleString Kind = iota
	Error
	Integer
	BulkString
	Array
	Null
)

// Value is a decoded (or to-be-encoded) RESP2 value.
type Value struct {
	Kind    Kind
	Str     string // SimpleString, Error
	Int     int64  // Integer
	Bulk    []byte // BulkString (Null is marked by IsNull, not by a nil Bulk)
	Array   []Value
	IsNull  bool // true for $-1 or *-1
}

func NewSimpleString(s string) Value { return Value{Kind: SimpleString, Str: s} }
func NewError(s string) Value        { return Value{Kind: Error, Str: s} }
func NewInteger(i int64) Value       { return Value{Kind: Integer, Int: i} }
func NewBulk(b []byte) Value         { return Value{Kind: BulkString, Bulk: b} }
func NewBulkString(s string) Value   { return Value{Kind: BulkString, Bulk: []byte(s)} }
func NewNullBulk() Value             { return Value{Kind: BulkString, IsNull: true} }
func NewArray(vs []Value) Value      { return Value{Kind: Array, Array: vs} }
func NewNullArray() Value            { return Value{Kind: Array, IsNull: true} }

// Encode appends the RESP2 wire encoding of v to dst and returns it.
func Encode(dst []byte, v Value) []byte {
	switch v.Kind {
	case SimpleString:
		dst = append(dst, '+')
		dst = append(dst, v.Str...)
		return append(dst, '\r', '\n')
	case Error:
		dst = append(dst, '-')
		dst = append(dst, v.Str...)
		return append(dst, '\r', '\n')
	case Integer:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, v.Int, 10)
		return append(dst, '\r', '\n')
	case BulkString:
		if v.IsNull {
			return append(dst, '$', '-', '1', '\r', '\n')
		}
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(v.Bulk)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, v.Bulk...)
		return append(dst, '\r', '\n')
	case Array:
		if v.IsNull {
			return append(dst, '*', '-', '1', '\r', '\n')
		}
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(v.Array)), 10)
		dst = append(dst, '\r', '\n')
		for _, elem := range v.Array {
			dst = Encode(dst, elem)
		}
		return dst
	default:
		return append(dst, '$', '-', '1', '\r', '\n')
	}
}

// WriteValue encodes v and writes it to w.
func WriteValue(w io.Writer, v Value) error {
	buf := Encode(make([]byte, 0, 64), v)
	_, err := w.Write(buf)
	return err
}

// ReadValue decodes exactly one RESP2 value from r.
func ReadValue(r *bufio.Reader) (Value, error) {
	line, err := readLine(r)
	if err != nil {
		return Value{}, err
	}
	if len(line) == 0 {
		return Value{}, qerr.ProtocolErr("empty frame header")
	}

	prefix, body := line[0], line[1:]
	switch prefix {
	case '+':
		return NewSimpleString(string(body)), nil
	case '-':
		return NewError(string(body)), nil
	case ':':
		n, err := strconv.ParseInt(string(body), 10, 64)
		if err != nil {
			return Value{}, qerr.ProtocolErr("invalid integer frame: %v", err)
		}
		return NewInteger(n), nil
	case '$':
		n, err := strconv.ParseInt(string(body), 10, 64)
		if err != nil {
			return Value{}, qerr.ProtocolErr("invalid bulk length: %v", err)
		}
		if n < 0 {
			return NewNullBulk(), nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Value{}, qerr.ProtocolErr("short bulk read: %v", err)
		}
		return NewBulk(buf[:n]), nil
	case '*':
		n, err := strconv.ParseInt(string(body), 10, 64)
		if err != nil {
			return Value{}, qerr.ProtocolErr("invalid array length: %v", err)
		}
		if n < 0 {
			return NewNullArray(), nil
		}
		elems := make([]Value, n)
		for i := range elems {
			v, err := ReadValue(r)
			if err != nil {
				return Value{}, err
			}
			elems[i] = v
		}
		return NewArray(elems), nil
	default:
		return Value{}, qerr.ProtocolErr("unknown frame prefix %q", prefix)
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		// A clean disconnect surfaces as io.EOF with nothing read yet;
		// pass it through unwrapped so callers can errors.Is(err, io.EOF)
		// rather than logging it as a protocol violation. Anything else
		// (EOF mid-frame, short reads) is a genuine framing error.
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		return nil, qerr.ProtocolErr("read frame line: %v", err)
	}
	n := len(line)
	if n < 2 || line[n-2] != '\r' {
		return nil, qerr.ProtocolErr("frame line not terminated by CRLF")
	}
	out := make([]byte, n-2)
	copy(out, line[:n-2])
	return out, nil
}

// AsError renders err as the "kind: message" RESP error body per
// spec.md §6.
func AsError(err error) Value {
	if e, ok := err.(*qerr.Error); ok {
		return NewError(fmt.Sprintf("%s: %s", e.Kind, e.Message))
	}
	return NewError(fmt.Sprintf("%s: %s", qerr.Internal, err.Error()))
}
