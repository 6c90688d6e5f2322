package tool

import "github.com/oss-labs/datalab/model"

// Definitions returns the full tool schema advertised to the main chat
// model. Unavailable optional capabilities are still listed so the model can
// name them and the orchestrator can answer with an "unavailable" result the
// user-facing layer explains properly.
func Definitions() []model.ToolDefinition {
	return []model.ToolDefinition{
		{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        FuncMetadataAnalysis,
				Description: "ONLY for quick metadata overview - shape, columns, data types, missing values",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file_path":    map[string]any{"type": "string", "description": "Full path to the dataset file"},
						"instructions": map[string]any{"type": "string", "description": "Specific instructions for metadata analysis"},
					},
					"required": []string{"file_path"},
				},
			},
		},
		{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        FuncFullAnalysis,
				Description: "For comprehensive analysis with visualizations, statistics, and detailed insights",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file_path": map[string]any{"type": "string", "description": "Full path to the dataset file"},
						"tasks": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "List of analysis tasks",
						},
						"instructions": map[string]any{"type": "string", "description": "Additional instructions"},
					},
					"required": []string{"file_path", "tasks"},
				},
			},
		},
		{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        FuncWebSearch,
				Description: "Search the web using SearXNG",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":      map[string]any{"type": "string"},
						"categories": map[string]any{"type": "string", "default": "general"},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        FuncRetrieval,
				Description: "Retrieve knowledge from user-uploaded reference documents",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":         map[string]any{"type": "string", "description": "User's query"},
						"max_documents": map[string]any{"type": "integer", "default": 5, "description": "Max number of retrieved document chunks"},
					},
					"required": []string{"query"},
				},
			},
		},
	}
}
