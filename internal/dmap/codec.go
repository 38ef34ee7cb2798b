package dmap

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes n to the DMAP wire format: code(4B) || length(4B,
// big-endian) || body. The length prefix counts the body only, never the
// 8-byte header itself.
func Encode(n Node) []byte {
	body := encodeBody(n)
	out := make([]byte, 8+len(body))
	copy(out[0:4], codeBytes(n.Code))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(body)))
	copy(out[8:], body)
	return out
}

func codeBytes(code string) []byte {
	b := make([]byte, 4)
	copy(b, code)
	return b
}

func encodeBody(n Node) []byte {
	switch n.Kind {
	case KindUint8:
		return []byte{byte(n.UInt)}
	case KindUint16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n.UInt))
		return b
	case KindUint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n.UInt))
		return b
	case KindUint64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, n.UInt)
		return b
	case KindInt8:
		return []byte{byte(int8(n.Int))}
	case KindInt16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(int16(n.Int)))
		return b
	case KindInt32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(int32(n.Int)))
		return b
	case KindInt64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(n.Int))
		return b
	case KindString:
		return []byte(n.Str)
	case KindBytes:
		return n.Bytes
	case KindTimestamp:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n.Time.Unix()))
		return b
	case KindVersion:
		b := make([]byte, 4)
		binary.BigEndian.PutUint16(b[0:2], n.Version.Major)
		binary.BigEndian.PutUint16(b[2:4], n.Version.Minor)
		return b
	case KindContainer:
		var body []byte
		for _, c := range n.Children {
			body = append(body, Encode(c)...)
		}
		return body
	default:
		return nil
	}
}

// EncodedLen returns the exact number of bytes Encode(n) produces, without
// allocating. For a container this is 8 plus the sum of its children's
// encoded lengths, the invariant clients and tests rely on.
func EncodedLen(n Node) int {
	switch n.Kind {
	case KindUint8, KindInt8:
		return 9
	case KindUint16, KindInt16:
		return 10
	case KindUint32, KindInt32, KindTimestamp, KindVersion:
		return 12
	case KindUint64, KindInt64:
		return 16
	case KindString:
		return 8 + len(n.Str)
	case KindBytes:
		return 8 + len(n.Bytes)
	case KindContainer:
		total := 8
		for _, c := range n.Children {
			total += EncodedLen(c)
		}
		return total
	default:
		return 8
	}
}

// Decode parses one DMAP node (and, for containers, its full subtree) from
// b starting at offset 0. kindOf resolves a 4-byte code to the Kind it was
// encoded with; decoding is not required by the server core (the wire
// format carries no type tag) but is kept symmetric with Encode for
// round-trip tests. It returns the node and the number of bytes consumed.
func Decode(b []byte, kindOf func(code string) (Kind, bool)) (Node, int, error) {
	if len(b) < 8 {
		return Node{}, 0, fmt.Errorf("dmap: need 8 bytes for header, have %d", len(b))
	}
	code := string(b[0:4])
	length := binary.BigEndian.Uint32(b[4:8])
	total := 8 + int(length)
	if len(b) < total {
		return Node{}, 0, fmt.Errorf("dmap: declared length %d exceeds available %d", length, len(b)-8)
	}
	body := b[8:total]

	kind, ok := kindOf(code)
	if !ok {
		// Unknown code: treat as opaque bytes so callers can still traverse
		// a tree containing fields they don't recognize.
		kind = KindBytes
	}

	n := Node{Code: code, Kind: kind}
	switch kind {
	case KindUint8:
		if len(body) != 1 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 1 byte, got %d", code, len(body))
		}
		n.UInt = uint64(body[0])
	case KindInt8:
		if len(body) != 1 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 1 byte, got %d", code, len(body))
		}
		n.Int = int64(int8(body[0]))
	case KindUint16:
		if len(body) != 2 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 2 bytes, got %d", code, len(body))
		}
		n.UInt = uint64(binary.BigEndian.Uint16(body))
	case KindInt16:
		if len(body) != 2 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 2 bytes, got %d", code, len(body))
		}
		n.Int = int64(int16(binary.BigEndian.Uint16(body)))
	case KindUint32:
		if len(body) != 4 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 4 bytes, got %d", code, len(body))
		}
		n.UInt = uint64(binary.BigEndian.Uint32(body))
	case KindInt32:
		if len(body) != 4 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 4 bytes, got %d", code, len(body))
		}
		n.Int = int64(int32(binary.BigEndian.Uint32(body)))
	case KindUint64:
		if len(body) != 8 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 8 bytes, got %d", code, len(body))
		}
		n.UInt = binary.BigEndian.Uint64(body)
	case KindInt64:
		if len(body) != 8 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 8 bytes, got %d", code, len(body))
		}
		n.Int = int64(binary.BigEndian.Uint64(body))
	case KindString:
		n.Str = string(body)
	case KindBytes:
		n.Bytes = append([]byte(nil), body...)
	case KindTimestamp:
		if len(body) != 4 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 4 bytes, got %d", code, len(body))
		}
		n.Time = unixToTime(binary.BigEndian.Uint32(body))
	case KindVersion:
		if len(body) != 4 {
			return Node{}, 0, fmt.Errorf("dmap: %s: expected 4 bytes, got %d", code, len(body))
		}
		n.Version = Version{Major: binary.BigEndian.Uint16(body[0:2]), Minor: binary.BigEndian.Uint16(body[2:4])}
	case KindContainer:
		consumed := 0
		for consumed < len(body) {
			child, n2, err := Decode(body[consumed:], kindOf)
			if err != nil {
				return Node{}, 0, fmt.Errorf("dmap: %s: child at offset %d: %w", code, consumed, err)
			}
			n.Children = append(n.Children, child)
			consumed += n2
		}
		if consumed != len(body) {
			return Node{}, 0, fmt.Errorf("dmap: %s: container declared length %d does not exactly cover children (%d)", code, len(body), consumed)
		}
	}
	return n, total, nil
}
