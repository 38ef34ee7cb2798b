// Package dmap implements the Digital Media Access Protocol tagged,
// length-prefixed binary encoding used as the body of every non-audio DAAP
// response. A Node is a recursive content-tree node: a 4-byte ASCII code,
// a payload kind, and either a scalar value or an ordered list of children.
//
// The wire format is fixed: code(4B) || big-endian length(4B) || body,
// where a container's body is the concatenation of its children's
// encodings. Integer width is a property of the code (carried by the
// Registry), never inferred from the runtime value, mirroring the way the
// teacher's internal/proto package fixes field widths by protocol position
// rather than by value.
package dmap

import "time"

// Kind identifies the payload type carried by a Node.
type Kind int

const (
	KindUint8 Kind = iota
	KindUint16
	KindUint32
	KindUint64
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindString
	KindBytes
	KindTimestamp
	KindVersion
	KindContainer
)

// Version is a DMAP version quad, encoded on the wire as two big-endian
// uint16s (major, minor.fraction) per the DAAP/DMAP convention.
type Version struct {
	Major uint16
	Minor uint16
}

// Node is a single DMAP content-tree node.
type Node struct {
	Code string // always 4 ASCII bytes

	Kind Kind

	UInt    uint64 // KindUint8/16/32/64
	Int     int64  // KindInt8/16/32/64
	Str     string // KindString
	Bytes   []byte // KindBytes
	Time    time.Time
	Version Version

	Children []Node // KindContainer
}

func U8(code string, v uint8) Node  { return Node{Code: code, Kind: KindUint8, UInt: uint64(v)} }
func U16(code string, v uint16) Node { return Node{Code: code, Kind: KindUint16, UInt: uint64(v)} }
func U32(code string, v uint32) Node { return Node{Code: code, Kind: KindUint32, UInt: uint64(v)} }
func U64(code string, v uint64) Node { return Node{Code: code, Kind: KindUint64, UInt: v} }

func I8(code string, v int8) Node   { return Node{Code: code, Kind: KindInt8, Int: int64(v)} }
func I16(code string, v int16) Node { return Node{Code: code, Kind: KindInt16, Int: int64(v)} }
func I32(code string, v int32) Node { return Node{Code: code, Kind: KindInt32, Int: int64(v)} }
func I64(code string, v int64) Node { return Node{Code: code, Kind: KindInt64, Int: v} }

func Str(code string, v string) Node { return Node{Code: code, Kind: KindString, Str: v} }
func Raw(code string, v []byte) Node { return Node{Code: code, Kind: KindBytes, Bytes: v} }

func Timestamp(code string, t time.Time) Node {
	return Node{Code: code, Kind: KindTimestamp, Time: t}
}

func Ver(code string, major, minor uint16) Node {
	return Node{Code: code, Kind: KindVersion, Version: Version{Major: major, Minor: minor}}
}

func Container(code string, children ...Node) Node {
	return Node{Code: code, Kind: KindContainer, Children: children}
}

// Append returns n with child appended to its Children. n must already be a
// container (or the zero Node, in which case it becomes one).
func (n Node) Append(child Node) Node {
	n.Kind = KindContainer
	n.Children = append(n.Children, child)
	return n
}
