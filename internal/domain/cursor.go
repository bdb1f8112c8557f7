package domain

// SignatureCursor records how far one source has been processed.
// An empty Signature means the source has no history yet.
type SignatureCursor struct {
	Source    string
	Signature string
	Slot      int64 // watermark, never decreases
	UpdatedAt int64 // ms
}

// IsSet reports whether the cursor has recorded any signature.
func (c SignatureCursor) IsSet() bool {
	return c.Signature != ""
}

// Reached reports whether a signature observed at slot is at or behind the cursor:
// either it is the recorded signature itself or it sits below the watermark.
func (c SignatureCursor) Reached(signature string, slot int64) bool {
	if !c.IsSet() {
		return false
	}
	return signature == c.Signature || slot < c.Slot
}

// Advance returns the cursor moved to (signature, slot). The watermark never
// moves backwards; an older slot leaves the cursor untouched and reports false.
func (c SignatureCursor) Advance(signature string, slot int64, nowMs int64) (SignatureCursor, bool) {
	if signature == "" || signature == c.Signature {
		return c, false
	}
	if c.IsSet() && slot < c.Slot {
		return c, false
	}
	next := c
	next.Signature = signature
	next.Slot = slot
	next.UpdatedAt = nowMs
	return next, true
}
