// Package snapshot implements the Snapshot facility (spec.md §4.H):
// a binary "QSNP" blob (msgpack payload, zstd-compressed) for
// consistent save/restore, and a human-readable JSON tree export.
// Grounded on the teacher's config/registry serialization style and on
// the rest of the retrieval pack for the domain libraries: msgpack
// (vmihailenco/msgpack, seen across the pack's manifests) for the
// compact binary form, klauspost/compress/zstd (sourced from
// AKJUS-bsc-erigon's dependency surface) to compress it, and
// goccy/go-json (same source) for the JSON tree.
package snapshot

import (
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"qstore/internal/qerr"
	"qstore/internal/store"
)

// magic identifies a binary snapshot blob; Decode rejects anything
// else outright rather than guessing at a format.
const magic = "QSNP"

// Encode renders snap as a magic-prefixed, zstd-compressed msgpack
// blob.
func Encode(snap store.StoreSnapshot) ([]byte, error) {
	raw, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, qerr.InternalErr("marshal snapshot: %v", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, qerr.InternalErr("create zstd encoder: %v", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw, make([]byte, 0, len(raw)))

	out := make([]byte, 0, len(magic)+len(compressed))
	out = append(out, magic...)
	out = append(out, compressed...)
	return out, nil
}

// Decode is the inverse of Encode.
func Decode(blob []byte) (store.StoreSnapshot, error) {
	if len(blob) < len(magic) || string(blob[:len(magic)]) != magic {
		return store.StoreSnapshot{}, qerr.ProtocolErr("snapshot blob missing QSNP magic")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return store.StoreSnapshot{}, qerr.InternalErr("create zstd decoder: %v", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(blob[len(magic):], nil)
	if err != nil {
		return store.StoreSnapshot{}, qerr.InternalErr("zstd decode: %v", err)
	}

	var snap store.StoreSnapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return store.StoreSnapshot{}, qerr.InternalErr("unmarshal snapshot: %v", err)
	}
	return snap, nil
}
