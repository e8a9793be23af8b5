package constants

// Server transports.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Translator kinds.
const (
	TranslatorRules  = "rules"
	TranslatorGemini = "gemini"
)

// Startup steps.
const (
	StepMigrate = "migrate"
	StepSeed    = "seed"
)

// Request sources recorded in audit events.
const (
	SourceMCP = "mcp"
	SourceAPI = "api"
)

// MCP tool names.
const (
	ToolAskGrades    = "ask_grades"
	ToolAddGrade     = "add_grade"
	ToolUpdateGrade  = "update_grade"
	ToolQueryGrades  = "query_grades"
	ToolGradeSummary = "grade_summary"
	ToolClassReport  = "class_report"
)

// ToolNames lists every built-in MCP tool.
var ToolNames = []string{
	ToolAskGrades,
	ToolAddGrade,
	ToolUpdateGrade,
	ToolQueryGrades,
	ToolGradeSummary,
	ToolClassReport,
}
