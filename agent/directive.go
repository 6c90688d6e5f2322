package agent

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Directive wire keys. The contract with the model is exactly one JSON
// object per reply with exactly one of these keys. The code key is named
// "python" on the wire for compatibility with the published contract; the
// kernel decides what language it actually interprets.
const (
	KeyCode          = "python"
	KeyMarkdown      = "markdown"
	KeyVisualization = "visualization"
	KeyConclusion    = "conclusion"
)

// Kind classifies a parsed directive.
type Kind int

const (
	// KindCode requests execution of a code cell.
	KindCode Kind = iota
	// KindMarkdown requests a narrative markdown cell.
	KindMarkdown
	// KindVisualization requests execution of a plotting code cell.
	KindVisualization
	// KindConclusion terminates the run with a final summary.
	KindConclusion
	// KindUnknown carries a single unrecognized key; the loop records a
	// warning cell and continues.
	KindUnknown
)

// Directive is one parsed, single-key structured instruction emitted by the
// model during a full-analysis run.
type Directive struct {
	Kind Kind
	Key  string // the wire key as received; informative for KindUnknown
	Text string // code or markdown/conclusion text
}

// ParseFault describes a recoverable protocol violation in a model reply.
// It is a value, not an error: the loop switches on its presence instead of
// catching exceptions.
type ParseFault struct {
	Reason string
	Keys   []string // populated when the object had zero or multiple keys
}

// Message renders the fault for the corrective reminder sent back to the
// model.
func (f *ParseFault) Message() string {
	if len(f.Keys) > 1 {
		return fmt.Sprintf("multiple keys found: %v", f.Keys)
	}
	return f.Reason
}

// ParseDirective parses one model reply into a Directive. A reply that is
// not a JSON object with exactly one key yields a ParseFault; a well-formed
// object with an unrecognized key yields KindUnknown so the loop can warn
// and continue.
func ParseDirective(reply string) (Directive, *ParseFault) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(reply), &obj); err != nil {
		return Directive{}, &ParseFault{Reason: "response is not a JSON object"}
	}
	if len(obj) != 1 {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Directive{}, &ParseFault{
			Reason: fmt.Sprintf("expected exactly one key, got %d", len(obj)),
			Keys:   keys,
		}
	}

	var key string
	var raw json.RawMessage
	for k, v := range obj {
		key, raw = k, v
	}

	text, fault := decodeValue(key, raw)
	if fault != nil {
		return Directive{}, fault
	}

	switch key {
	case KeyCode:
		return Directive{Kind: KindCode, Key: key, Text: text}, nil
	case KeyMarkdown:
		return Directive{Kind: KindMarkdown, Key: key, Text: text}, nil
	case KeyVisualization:
		return Directive{Kind: KindVisualization, Key: key, Text: text}, nil
	case KeyConclusion:
		return Directive{Kind: KindConclusion, Key: key, Text: text}, nil
	default:
		return Directive{Kind: KindUnknown, Key: key, Text: text}, nil
	}
}

// decodeValue expects a string value; the conclusion key tolerates any JSON
// value and renders it as text, since the final summary is free text.
func decodeValue(key string, raw json.RawMessage) (string, *ParseFault) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	if key == KeyConclusion {
		return string(raw), nil
	}
	return "", &ParseFault{Reason: fmt.Sprintf("value of %q must be a string", key)}
}
