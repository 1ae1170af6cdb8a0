package audio

import (
	"encoding/json"
	"fmt"
)

// Edit copies input samples InFrom..InTo (1-based, both inclusive) to the
// output starting at sample OutFrom (1-based).
type Edit struct {
	InFrom  int
	InTo    int
	OutFrom int
}

// OutTo returns the 1-based inclusive end of the output window for an input
// signal of length n.
func (e Edit) OutTo(n int) int {
	return e.OutFrom + min(e.InTo, n) - e.InFrom
}

func (e Edit) String() string {
	return fmt.Sprintf("[%d %d %d]", e.InFrom, e.InTo, e.OutFrom)
}

// UnmarshalJSON decodes the [in_from, in_to, out_from] form used in edit files.
func (e *Edit) UnmarshalJSON(data []byte) error {
	var fields []int
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to decode edit %s: %w", data, err)
	}
	if len(fields) != 3 {
		return fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedEdit, len(fields))
	}
	e.InFrom, e.InTo, e.OutFrom = fields[0], fields[1], fields[2]
	return nil
}

func (e Edit) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{e.InFrom, e.InTo, e.OutFrom})
}

// ApplyEdits builds a frame-drop corrected copy of x.
//
// The output buffer is sized from the last edit and starts as silence, so
// any output samples not covered by an edit stay zero. Edits whose InFrom
// lies beyond the end of x stop the processing; an InTo beyond the end is
// clamped. The result is trimmed to the output end of the last edit that was
// applied. An empty edit list yields an empty signal.
//
// Overlapping output windows are not detected: later edits overwrite earlier
// ones.
func ApplyEdits(x Signal, edits []Edit) (Signal, error) {
	if len(edits) == 0 {
		return Signal{}, nil
	}
	for i, e := range edits {
		if e.InFrom < 1 || e.OutFrom < 1 || e.InTo < e.InFrom {
			return nil, fmt.Errorf("%w: edit %d %s", ErrMalformedEdit, i, e)
		}
	}

	last := edits[len(edits)-1]
	size := last.OutFrom + last.InTo - last.InFrom
	out := make(Signal, size)

	n := len(x)
	outTo := 0
	for i, e := range edits {
		if e.InFrom > n {
			break
		}
		end := e.OutTo(n)
		if end > size {
			return nil, fmt.Errorf("%w: edit %d %s writes to sample %d past output length %d",
				ErrMalformedEdit, i, e, end, size)
		}
		copy(out[e.OutFrom-1:end], x[e.InFrom-1:min(e.InTo, n)])
		outTo = end
	}

	return out[:outTo], nil
}
