package types

import (
	"encoding/json"
	"time"

	"github.com/holiman/uint256"
)

// SpanEvent is one timestamped point-in-time marker attached to a span
// (e.g. "dryrun A failed", "receipt mined").
type SpanEvent struct {
	Name      string
	Timestamp time.Time
	Attrs     map[string]any
}

// PreAssembledSpan is the fully-formed telemetry record the core hands to
// Logger.ExportPreAssembledSpan. The core never touches an OTel SDK type
// directly — everything it wants recorded is flattened into this struct
// first, which keeps the exporter wiring entirely outside core scope.
type PreAssembledSpan struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Attrs     map[string]any
	Events    []SpanEvent
	Severity  Severity
	Reason    Reason
}

// U256JSON wraps a *uint256.Int so it marshals as a decimal string rather
// than the library's default array-of-limbs encoding. Any telemetry path
// that serializes a settlement's attributes to JSON should route its u256
// fields through this type so large integers survive the round trip
// without precision loss.
type U256JSON struct {
	*uint256.Int
}

// MarshalJSON renders the wrapped value as a base-10 string, or "null" for
// a nil pointer.
func (u U256JSON) MarshalJSON() ([]byte, error) {
	if u.Int == nil {
		return []byte("null"), nil
	}
	return json.Marshal(u.Int.Dec())
}

// UnmarshalJSON parses a base-10 string (or JSON number) back into the
// wrapped *uint256.Int.
func (u *U256JSON) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// fall back to numeric literal for hand-written fixtures
		var n json.Number
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return err
		}
		s = n.String()
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return err
	}
	u.Int = v
	return nil
}

// AttrsWithU256 returns a shallow copy of attrs with every *uint256.Int
// value rewritten to its decimal-string form, so the map marshals safely
// through encoding/json without a custom MarshalJSON on the whole span.
func AttrsWithU256(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case *uint256.Int:
			if val == nil {
				out[k] = nil
			} else {
				out[k] = val.Dec()
			}
		case []*uint256.Int:
			strs := make([]string, len(val))
			for i, e := range val {
				if e != nil {
					strs[i] = e.Dec()
				}
			}
			out[k] = strs
		default:
			out[k] = v
		}
	}
	return out
}
