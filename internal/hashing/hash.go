// Package hashing implements the structural payload hash: a 64-bit
// fingerprint over a JSON document that depends only on its object keys and
// nesting, never on scalar values or array contents. Two payloads that
// differ only in a string, number, boolean or null leaf collide; two
// payloads whose object key sets or nesting differ do not.
package hashing

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// member is one key/value pair of a decoded JSON object, kept in the order
// the decoder read it off the wire. encoding/json's default decode target,
// map[string]any, does not preserve this order, so Object below is built
// from a token stream instead.
type member struct {
	key   string
	value any
}

// object is an order-preserving stand-in for a JSON object. Only Object
// values carry structural weight for hashing; everything else (strings,
// numbers, bools, null, arrays) is opaque to the hash.
type object struct {
	members []member
}

// array is likewise order-preserving, used only for recursive decode — its
// elements are never fed into the hash, per the spec's "array contents do
// not influence the hash" rule, but they are still parsed so malformed
// documents are still rejected the same way encoding/json would reject them.
type array struct {
	items []any
}

// Decode parses raw JSON bytes into a tree of object/array/scalar values
// that preserves each object's source key order. It returns a non-nil error
// for any input encoding/json.Unmarshal would reject, though not always the
// same error value — Hash callers use this to distinguish a real JSON
// document from a Raw fallback payload.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}

	// Reject trailing garbage the same way json.Unmarshal does.
	if _, err := dec.Token(); err != io.EOF {
		return nil, &json.SyntaxError{}
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			// '}' or ']' here means an empty/invalid structure at the
			// wrong nesting level; callers only reach this from
			// decodeObject/decodeArray, which already consume their own
			// closing delimiters.
			return nil, &json.SyntaxError{}
		}
	default:
		return tok, nil
	}
}

func decodeObject(dec *json.Decoder) (*object, error) {
	obj := &object{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, &json.SyntaxError{}
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		obj.members = append(obj.members, member{key: key, value: val})
	}
	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeArray(dec *json.Decoder) (*array, error) {
	arr := &array{}
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		arr.items = append(arr.items, val)
	}
	// Consume the closing ']'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

// Hash computes the structural hash of a decoded JSON value (as produced by
// Decode). Only *object values mix bytes into the hash; everything else —
// scalars and arrays alike — is not traversed and contributes nothing, so
// objects nested inside arrays do not affect the hash either. The top-level
// object's keys are hashed in sorted order, so reordering top-level keys
// does not change the hash; nested objects are hashed in source key order.
func Hash(v any) uint64 {
	d := xxhash.New()
	if obj, ok := v.(*object); ok {
		sorted := &object{members: append([]member(nil), obj.members...)}
		sort.SliceStable(sorted.members, func(i, j int) bool {
			return sorted.members[i].key < sorted.members[j].key
		})
		v = sorted
	}
	hashInto(d, v)
	return d.Sum64()
}

func hashInto(d *xxhash.Digest, v any) {
	obj, ok := v.(*object)
	if !ok {
		return
	}
	d.Write([]byte{'>'})
	for _, m := range obj.members {
		d.Write([]byte(m.key))
		hashInto(d, m.value)
	}
}
