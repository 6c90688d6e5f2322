// Package tool declares the fixed function-calling surface the main chat
// model can invoke, and the error type agents use to categorize tool
// failures. The vocabulary is fixed: four functions, one owning agent each.
package tool

import "fmt"

// Function names routable by the orchestrator.
const (
	FuncMetadataAnalysis = "dataset_metadata_analysis"
	FuncFullAnalysis     = "full_dataset_analysis"
	FuncWebSearch        = "web_search"
	FuncRetrieval        = "rag_knowledge_retrieval"
)

// Error represents a categorized tool execution failure.
type Error struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewError creates a categorized tool error.
func NewError(tool, message, code string) *Error {
	return &Error{Tool: tool, Message: message, Code: code}
}
