package delta

// Compose merges two sequential deltas into one: applying the result equals
// applying a and then b. When a is document content (all inserts) the result
// is the new document content, so Compose doubles as "apply".
//
// Composition is associative but not commutative, and the result is
// normalized.
func Compose(a, b Delta) Delta {
	thisIter := newIterator(a)
	otherIter := newIterator(b)
	out := New()
	for thisIter.hasNext() || otherIter.hasNext() {
		if otherIter.peekType() == typeInsert {
			out = out.push(otherIter.next(otherIter.peekLength()))
			continue
		}
		if thisIter.peekType() == typeDelete {
			out = out.push(thisIter.next(thisIter.peekLength()))
			continue
		}
		length := minInt(thisIter.peekLength(), otherIter.peekLength())
		thisOp := thisIter.next(length)
		otherOp := otherIter.next(length)
		switch {
		case otherOp.Retain > 0:
			newOp := Op{}
			if thisOp.Retain > 0 {
				newOp.Retain = length
			} else {
				newOp.Insert = thisOp.Insert
			}
			newOp.Attributes = composeAttributes(thisOp.Attributes, otherOp.Attributes, thisOp.Retain > 0)
			out = out.push(newOp)
		case otherOp.Delete > 0 && thisOp.Retain > 0:
			out = out.push(otherOp)
			// A delete over an insert cancels; emit nothing.
		}
	}
	return out.chop()
}

// Transform rewrites b so it can be applied after a, where a and b share the
// same base state. When aWins is true, a takes the spot at identical insert
// positions and its insertion appears first.
//
// The diamond property holds:
//
//	Compose(a, Transform(a, b, false)) == Compose(b, Transform(b, a, true))
func Transform(a, b Delta, aWins bool) Delta {
	thisIter := newIterator(a)
	otherIter := newIterator(b)
	out := New()
	for thisIter.hasNext() || otherIter.hasNext() {
		if thisIter.peekType() == typeInsert && (aWins || otherIter.peekType() != typeInsert) {
			out = out.Retain(opLength(thisIter.next(thisIter.peekLength())), nil)
			continue
		}
		if otherIter.peekType() == typeInsert {
			out = out.push(otherIter.next(otherIter.peekLength()))
			continue
		}
		length := minInt(thisIter.peekLength(), otherIter.peekLength())
		thisOp := thisIter.next(length)
		otherOp := otherIter.next(length)
		switch {
		case thisOp.Delete > 0:
			// b's target range is already gone.
		case otherOp.Delete > 0:
			out = out.push(otherOp)
		default:
			out = out.Retain(length, transformAttributes(thisOp.Attributes, otherOp.Attributes, aWins))
		}
	}
	return out.chop()
}

// TransformAll threads incoming through an ascending run of committed deltas.
// At each step the committed delta is the earlier op and wins positional
// ties, so a client's insertion lands after concurrent insertions that
// already committed at the same position. The result is safe to apply after
// every committed delta.
func TransformAll(incoming Delta, committed []Delta) Delta {
	out := incoming
	for _, c := range committed {
		out = Transform(c, out, true)
	}
	return out
}

// Invert returns the delta that undoes d against the base content it was
// applied to: Compose(Compose(base, d), Invert(d, base)) == base.
func Invert(d, base Delta) Delta {
	out := New()
	baseIndex := 0
	for _, op := range d {
		switch {
		case op.Insert != nil:
			out = out.Delete(opLength(op))
		case op.Retain > 0 && op.Attributes == nil:
			out = out.Retain(op.Retain, nil)
			baseIndex += op.Retain
		case op.Retain > 0:
			for _, baseOp := range Slice(base, baseIndex, baseIndex+op.Retain) {
				out = out.Retain(opLength(baseOp), invertAttributes(op.Attributes, baseOp.Attributes))
			}
			baseIndex += op.Retain
		case op.Delete > 0:
			for _, baseOp := range Slice(base, baseIndex, baseIndex+op.Delete) {
				out = out.push(baseOp)
			}
			baseIndex += op.Delete
		}
	}
	return out.chop()
}

// composeAttributes layers b over a. Nil values in b remove keys; they are
// kept in the result only for retains (keepNil), where a later base document
// still needs to see the removal.
func composeAttributes(a, b Attributes, keepNil bool) Attributes {
	out := Attributes{}
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	if !keepNil {
		for k, v := range out {
			if v == nil {
				delete(out, k)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// transformAttributes resolves concurrent attribute changes: when a wins,
// b keeps only the keys a did not touch.
func transformAttributes(a, b Attributes, aWins bool) Attributes {
	if len(a) == 0 || !aWins {
		if len(b) == 0 {
			return nil
		}
		return b
	}
	out := Attributes{}
	for k, v := range b {
		if _, taken := a[k]; !taken {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// invertAttributes restores the base values for every key attrs changed.
func invertAttributes(attrs, base Attributes) Attributes {
	if len(attrs) == 0 {
		return nil
	}
	out := Attributes{}
	for k := range attrs {
		if v, ok := base[k]; ok {
			out[k] = v
		} else {
			out[k] = nil
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
