package delta

import (
	"math"
	"unicode/utf8"
)

const (
	typeInsert = "insert"
	typeDelete = "delete"
	typeRetain = "retain"
)

// iterator walks a delta in unit increments, splitting ops on demand.
// Past the end it yields an unbounded plain retain, which lets Compose and
// Transform treat "the rest of the document" uniformly.
type iterator struct {
	ops    Delta
	index  int
	offset int
}

func newIterator(d Delta) *iterator {
	return &iterator{ops: d}
}

func (it *iterator) hasNext() bool {
	return it.index < len(it.ops)
}

func (it *iterator) peekLength() int {
	if !it.hasNext() {
		return math.MaxInt
	}
	return opLength(it.ops[it.index]) - it.offset
}

func (it *iterator) peekType() string {
	if !it.hasNext() {
		return typeRetain
	}
	op := it.ops[it.index]
	switch {
	case op.Delete > 0:
		return typeDelete
	case op.Insert != nil:
		return typeInsert
	default:
		return typeRetain
	}
}

// next consumes up to n units of the current op and returns them as an op.
func (it *iterator) next(n int) Op {
	if !it.hasNext() {
		return Op{Retain: n}
	}
	op := it.ops[it.index]
	offset := it.offset
	length := opLength(op)
	if n >= length-offset {
		n = length - offset
		it.index++
		it.offset = 0
	} else {
		it.offset += n
	}
	if op.Delete > 0 {
		return Op{Delete: n}
	}
	out := Op{Attributes: op.Attributes}
	switch {
	case op.Retain > 0:
		out.Retain = n
	default:
		if s, ok := op.Insert.(string); ok {
			out.Insert = runeSlice(s, offset, offset+n)
		} else {
			out.Insert = op.Insert
		}
	}
	return out
}

// runeSlice slices s by code-point offsets.
func runeSlice(s string, start, end int) string {
	if start <= 0 && end >= utf8.RuneCountInString(s) {
		return s
	}
	runes := []rune(s)
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}
