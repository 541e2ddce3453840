package mcptools

import "github.com/dusk-indust/excelslim/internal/report"

// --- MCP Tool Types ---
// The MCP Go SDK derives each tool's JSON schema from these struct tags.

// SlimWorkbookInput is the input for the slim_workbook MCP tool. Unset stage
// flags fall back to the default selection (clean and image).
type SlimWorkbookInput struct {
	Input          string `json:"input" jsonschema:"absolute path to the .xlsx or .xlsm workbook"`
	Clean          *bool  `json:"clean,omitempty" jsonschema:"run the defined-name cleaner (default: true)"`
	Image          *bool  `json:"image,omitempty" jsonschema:"run the image optimizer (default: true)"`
	Precision      *bool  `json:"precision,omitempty" jsonschema:"run the precision slimmer (default: false)"`
	Aggressive     bool   `json:"aggressive,omitempty" jsonschema:"precision: aggressive mode"`
	XMLCleanup     bool   `json:"xmlCleanup,omitempty" jsonschema:"precision: clean up worksheet XML"`
	ForceCustomXML bool   `json:"forceCustomXml,omitempty" jsonschema:"precision: force removal of custom XML parts"`
}

// SlimWorkbookOutput is the result of the slim_workbook MCP tool.
type SlimWorkbookOutput struct {
	RunID        string               `json:"runId,omitempty"`
	Status       string               `json:"status"` // "completed" or "failed"
	FinalPath    string               `json:"finalPath,omitempty"`
	Message      string               `json:"message,omitempty"`
	SavedPercent float64              `json:"savedPercent"`
	Stages       []report.StageExport `json:"stages"`
	Warnings     []string             `json:"warnings,omitempty"`
	Log          []string             `json:"log"`
}

// ListStagesInput is the input for the list_stages MCP tool.
type ListStagesInput struct{}

// ListStagesOutput is the result of the list_stages MCP tool.
type ListStagesOutput struct {
	Stages []StageInfo `json:"stages"`
}

// StageInfo describes one stage in execution order.
type StageInfo struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Default   bool   `json:"default"`
	Suffix    string `json:"suffix"`
	HasBackup bool   `json:"hasBackup"`
	Tool      string `json:"tool,omitempty"`
	Available *bool  `json:"available,omitempty"`
	ToolError string `json:"toolError,omitempty"`
}
