// Package health turns raw BACnet property values into storage-ready
// fields. Every function is total: malformed input produces a logged
// warning and a nil/empty result, never an error return — mirrors
// original_source/apps/bms-iot-app/src/utils/bacnet_health_processor.py's
// method-per-field structure one-to-one.
package health

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/openbms-io/bms-edge-agent/internal/common/logger"
)

var statusFlagNames = [4]string{"in-alarm", "fault", "overridden", "out-of-service"}

// ProcessStatusFlags accepts a 4-element bool/int array or an
// already-rendered string and returns a semicolon-joined list of active
// flag names, or nil when none are set.
func ProcessStatusFlags(raw any) *string {
	if raw == nil {
		return nil
	}

	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		return &s
	case []bool:
		if len(v) != 4 {
			logger.Warn("health: invalid statusFlags length %d", len(v))
			return nil
		}
		return joinActiveFlags(v)
	case []int:
		if len(v) != 4 {
			logger.Warn("health: invalid statusFlags length %d", len(v))
			return nil
		}
		bits := make([]bool, 4)
		for i, b := range v {
			bits[i] = b == 1
		}
		return joinActiveFlags(bits)
	default:
		logger.Warn("health: unrecognized statusFlags shape %T", raw)
		return nil
	}
}

func joinActiveFlags(bits []bool) *string {
	var active []string
	for i, set := range bits {
		if set {
			active = append(active, statusFlagNames[i])
		}
	}
	if len(active) == 0 {
		return nil
	}
	joined := strings.Join(active, ";")
	return &joined
}

// ProcessReliability passes a non-empty reliability string through
// unmodified; empty or non-string input becomes nil.
func ProcessReliability(raw *string) *string {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil
	}
	return &s
}

// ProcessOutOfService passes the flag through only when present.
func ProcessOutOfService(raw *bool) *bool {
	return raw
}

// ProcessPriorityArray emits a 16-slot JSON array of reals-or-nulls.
func ProcessPriorityArray(raw []*float64) *string {
	if raw == nil {
		return nil
	}
	if len(raw) != 16 {
		logger.Warn("health: priority array length %d, expected 16", len(raw))
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		logger.Warn("health: failed to marshal priority array: %v", err)
		return nil
	}
	s := string(b)
	return &s
}

// LimitEnable is the decoded shape of the 2-bit LimitEnable BitString.
type LimitEnable struct {
	LowLimitEnable  bool `json:"lowLimitEnable"`
	HighLimitEnable bool `json:"highLimitEnable"`
}

// ProcessLimitEnable encodes a [low, high] bit pair as JSON.
func ProcessLimitEnable(raw []bool) *string {
	if raw == nil {
		return nil
	}
	if len(raw) < 2 {
		logger.Warn("health: limitEnable has fewer than 2 bits")
		return nil
	}
	return marshalJSON(LimitEnable{LowLimitEnable: raw[0], HighLimitEnable: raw[1]})
}

// EventTransitionBits is the decoded shape of a 3-bit transition BitString,
// shared by eventEnable and ackedTransitions.
type EventTransitionBits struct {
	ToFault     bool `json:"toFault"`
	ToNormal    bool `json:"toNormal"`
	ToOffnormal bool `json:"toOffnormal"`
}

// ProcessEventTransitionBits encodes a [fault, normal, offnormal] bit
// triple as JSON. fieldName is used only in the warning log.
func ProcessEventTransitionBits(raw []bool, fieldName string) *string {
	if raw == nil {
		return nil
	}
	if len(raw) < 3 {
		logger.Warn("health: %s has fewer than 3 bits", fieldName)
		return nil
	}
	return marshalJSON(EventTransitionBits{ToFault: raw[0], ToNormal: raw[1], ToOffnormal: raw[2]})
}

// ProcessEventTimestamps emits a 3-slot JSON array of ISO-8601 strings or
// nulls, padding/truncating to exactly 3 entries.
func ProcessEventTimestamps(raw []*time.Time) *string {
	if raw == nil {
		return nil
	}
	out := make([]*string, 3)
	for i := 0; i < 3 && i < len(raw); i++ {
		if raw[i] != nil {
			s := raw[i].UTC().Format(time.RFC3339)
			out[i] = &s
		}
	}
	return marshalJSON(out)
}

// ProcessEventMessageTexts emits a 3-slot JSON array of strings, using ""
// for absent entries.
func ProcessEventMessageTexts(raw []string) *string {
	if raw == nil {
		return nil
	}
	out := make([]string, 3)
	for i := 0; i < 3 && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return marshalJSON(out)
}

// ObjectPropertyReference is the decoded shape of an
// ObjectPropertyReference value.
type ObjectPropertyReference struct {
	ObjectIdentifier   string `json:"objectIdentifier"`
	PropertyIdentifier string `json:"propertyIdentifier"`
	ArrayIndex         *int   `json:"arrayIndex,omitempty"`
}

// ProcessObjectPropertyReference encodes an object/property reference as
// JSON, or nil if both identifiers are empty.
func ProcessObjectPropertyReference(ref *ObjectPropertyReference) *string {
	if ref == nil {
		return nil
	}
	if ref.ObjectIdentifier == "" && ref.PropertyIdentifier == "" {
		return nil
	}
	return marshalJSON(ref)
}

func marshalJSON(v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Warn("health: failed to marshal %T: %v", v, err)
		return nil
	}
	s := string(b)
	return &s
}
