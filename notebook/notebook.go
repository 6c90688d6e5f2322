// Package notebook owns the durable, ordered cell document backing one
// analysis run, and the execution engine that glues kernel output to cells.
// The on-disk file is nbformat v4 JSON so any standard notebook viewer can
// open it.
package notebook

import (
	"encoding/json"

	"github.com/oss-labs/datalab/core"
)

// Cell types.
const (
	CellCode     = "code"
	CellMarkdown = "markdown"
)

// Output is one stream entry attached to a code cell.
type Output struct {
	OutputType string `json:"output_type"` // "stream"
	Name       string `json:"name"`        // "stdout" or "stderr"
	Text       string `json:"text"`
}

// Cell is one ordered unit of the document. Cells are appended during a run,
// mutated only to attach output after execution, and never reordered or
// deleted.
type Cell struct {
	Type           string
	ID             string
	Source         string
	ExecutionCount int // code cells only; 0 means not executed
	Outputs        []Output
}

// MarshalJSON emits the nbformat shape: code cells carry execution_count and
// outputs keys, markdown cells must not.
func (c Cell) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"cell_type": c.Type,
		"id":        c.ID,
		"metadata":  map[string]any{},
		"source":    c.Source,
	}
	if c.Type == CellCode {
		outputs := c.Outputs
		if outputs == nil {
			outputs = []Output{}
		}
		m["outputs"] = outputs
		if c.ExecutionCount > 0 {
			m["execution_count"] = c.ExecutionCount
		} else {
			m["execution_count"] = nil
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts both string and string-list sources, which nbformat
// allows interchangeably.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var raw struct {
		CellType       string          `json:"cell_type"`
		ID             string          `json:"id"`
		Source         json.RawMessage `json:"source"`
		ExecutionCount *int            `json:"execution_count"`
		Outputs        []Output        `json:"outputs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Type = raw.CellType
	c.ID = raw.ID
	c.Outputs = raw.Outputs
	if raw.ExecutionCount != nil {
		c.ExecutionCount = *raw.ExecutionCount
	}
	c.Source = decodeSource(raw.Source)
	return nil
}

func decodeSource(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		var out string
		for _, l := range lines {
			out += l
		}
		return out
	}
	return ""
}

// Kernelspec identifies the execution backend in document metadata.
type Kernelspec struct {
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	Name        string `json:"name"`
}

// LanguageInfo describes the cell language.
type LanguageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Metadata is the fixed document/kernel metadata written at creation.
type Metadata struct {
	Kernelspec   Kernelspec   `json:"kernelspec"`
	LanguageInfo LanguageInfo `json:"language_info"`
}

// Document is the in-memory notebook: ordered cells plus fixed metadata.
type Document struct {
	Cells         []Cell   `json:"cells"`
	Metadata      Metadata `json:"metadata"`
	NBFormat      int      `json:"nbformat"`
	NBFormatMinor int      `json:"nbformat_minor"`
}

// NewDocument builds an empty notebook with the fixed kernel metadata.
func NewDocument() *Document {
	return &Document{
		Cells: []Cell{},
		Metadata: Metadata{
			Kernelspec:   Kernelspec{DisplayName: "Go (yaegi)", Language: "go", Name: "go"},
			LanguageInfo: LanguageInfo{Name: "go", Version: "1.24"},
		},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
}

func newMarkdownCell(text string) Cell {
	return Cell{Type: CellMarkdown, ID: core.ShortID(), Source: text}
}

func newCodeCell(code string, index int) Cell {
	return Cell{Type: CellCode, ID: core.ShortID(), Source: code, ExecutionCount: index}
}
