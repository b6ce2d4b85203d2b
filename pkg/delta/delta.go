// Package delta implements rich-text deltas and the operational
// transformation over them: compose, transform, and invert.
//
// A delta is an ordered run of retain/insert/delete operations over a
// position cursor. Document content is itself a delta consisting only of
// inserts. Deltas are the only edit representation on the wire and in the
// operation log.
package delta

import (
	"errors"
	"fmt"
	"reflect"
	"unicode/utf8"
)

// ErrMalformed reports a structurally invalid delta. Callers surface it to
// clients as a protocol error.
var ErrMalformed = errors.New("malformed delta")

// Attributes carries formatting key/values attached to a retain or insert.
// A nil value inside the map means "remove this attribute" when composing.
type Attributes map[string]interface{}

// Op is a single delta operation. Exactly one of Insert, Retain or Delete
// is set. Insert holds a string or an embed object (map with one key).
type Op struct {
	Insert     interface{} `json:"insert,omitempty" bson:"insert,omitempty"`
	Retain     int         `json:"retain,omitempty" bson:"retain,omitempty"`
	Delete     int         `json:"delete,omitempty" bson:"delete,omitempty"`
	Attributes Attributes  `json:"attributes,omitempty" bson:"attributes,omitempty"`
}

// Delta is an ordered sequence of operations. The zero value is the empty
// delta, which is the identity for Compose and Transform.
type Delta []Op

// New returns an empty delta, ready for chained builder calls.
func New() Delta {
	return Delta{}
}

// Retain appends a retain of n units, optionally overriding attributes.
func (d Delta) Retain(n int, attrs Attributes) Delta {
	if n <= 0 {
		return d
	}
	return d.push(Op{Retain: n, Attributes: attrs})
}

// Insert appends a text insertion.
func (d Delta) Insert(s string, attrs Attributes) Delta {
	if s == "" {
		return d
	}
	return d.push(Op{Insert: s, Attributes: attrs})
}

// InsertEmbed appends an embed object insertion (an image, a mention, ...).
func (d Delta) InsertEmbed(embed map[string]interface{}, attrs Attributes) Delta {
	if len(embed) == 0 {
		return d
	}
	return d.push(Op{Insert: embed, Attributes: attrs})
}

// Delete appends a deletion of n units.
func (d Delta) Delete(n int) Delta {
	if n <= 0 {
		return d
	}
	return d.push(Op{Delete: n})
}

// opLength returns the length of op in units: code points for text inserts,
// 1 for embeds, and the run length for retains and deletes.
func opLength(op Op) int {
	switch {
	case op.Delete > 0:
		return op.Delete
	case op.Retain > 0:
		return op.Retain
	case op.Insert != nil:
		if s, ok := op.Insert.(string); ok {
			return utf8.RuneCountInString(s)
		}
		return 1
	}
	return 0
}

// Length returns the total length of the delta in units. For document
// content (all inserts) this equals the document length.
func (d Delta) Length() int {
	var n int
	for _, op := range d {
		n += opLength(op)
	}
	return n
}

// push appends op, merging it into the tail when the kinds and attributes
// match. Adjacent insert+delete runs are ordered insert-first so that equal
// deltas have a single canonical form.
func (d Delta) push(newOp Op) Delta {
	if opLength(newOp) == 0 {
		return d
	}
	index := len(d)
	if index > 0 {
		last := d[index-1]
		if newOp.Delete > 0 && last.Delete > 0 {
			d[index-1] = Op{Delete: last.Delete + newOp.Delete}
			return d
		}
		// An insert right after a delete targets the same position, so
		// order the insert first for a canonical form.
		if last.Delete > 0 && newOp.Insert != nil {
			index--
			if index > 0 {
				last = d[index-1]
			} else {
				return append(Delta{newOp}, d...)
			}
		}
		if attrsEqual(newOp.Attributes, last.Attributes) {
			ns, nOK := newOp.Insert.(string)
			ls, lOK := last.Insert.(string)
			if nOK && lOK {
				d[index-1] = Op{Insert: ls + ns, Attributes: newOp.Attributes}
				return d
			}
			if newOp.Retain > 0 && last.Retain > 0 {
				d[index-1] = Op{Retain: last.Retain + newOp.Retain, Attributes: newOp.Attributes}
				return d
			}
		}
	}
	if index == len(d) {
		return append(d, newOp)
	}
	d = append(d, Op{})
	copy(d[index+1:], d[index:])
	d[index] = newOp
	return d
}

// chop drops a trailing attribute-less retain; retaining to the end of the
// document is implicit.
func (d Delta) chop() Delta {
	if n := len(d); n > 0 {
		if last := d[n-1]; last.Retain > 0 && last.Attributes == nil {
			return d[:n-1]
		}
	}
	return d
}

// Normalize rebuilds d into its canonical form: zero-length ops dropped,
// adjacent mergeable runs merged, trailing retain chopped.
func Normalize(d Delta) Delta {
	out := New()
	for _, op := range d {
		out = out.push(op)
	}
	return out.chop()
}

// Equals reports structural equality of the normalized forms.
func Equals(a, b Delta) bool {
	na, nb := Normalize(a), Normalize(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if !opsEqual(na[i], nb[i]) {
			return false
		}
	}
	return true
}

func opsEqual(a, b Op) bool {
	return a.Retain == b.Retain &&
		a.Delete == b.Delete &&
		reflect.DeepEqual(a.Insert, b.Insert) &&
		attrsEqual(a.Attributes, b.Attributes)
}

func attrsEqual(a, b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Validate checks structural validity: each op carries exactly one kind and
// no negative run lengths. Zero-valued ops are tolerated; Normalize removes
// them. Malformed deltas wrap ErrMalformed.
func (d Delta) Validate() error {
	for i, op := range d {
		if op.Retain < 0 || op.Delete < 0 {
			return fmt.Errorf("%w: op %d has a negative length", ErrMalformed, i)
		}
		kinds := 0
		if op.Insert != nil {
			switch v := op.Insert.(type) {
			case string:
				// Empty string inserts normalize away.
			case map[string]interface{}:
				if len(v) == 0 {
					return fmt.Errorf("%w: op %d has an empty embed", ErrMalformed, i)
				}
			default:
				return fmt.Errorf("%w: op %d insert must be text or an embed object", ErrMalformed, i)
			}
			kinds++
		}
		if op.Retain > 0 {
			kinds++
		}
		if op.Delete > 0 {
			kinds++
		}
		if kinds > 1 {
			return fmt.Errorf("%w: op %d mixes operation kinds", ErrMalformed, i)
		}
		if op.Delete > 0 && op.Attributes != nil {
			return fmt.Errorf("%w: op %d carries attributes on a delete", ErrMalformed, i)
		}
	}
	return nil
}

// Slice returns the [start, end) portion of d, counted in units.
func Slice(d Delta, start, end int) Delta {
	it := newIterator(d)
	out := New()
	index := 0
	for index < end && it.hasNext() {
		var next Op
		if index < start {
			next = it.next(start - index)
		} else {
			next = it.next(end - index)
			out = out.push(next)
		}
		index += opLength(next)
	}
	return out
}
