package pipeline

// Default values for model calls and conversion runs.
const (
	// DefaultModelName is the default Gemini model used for every call.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultWorkers keeps a single extraction in flight.
	DefaultWorkers = 1

	// jsonMIMEType is requested from the model for every call.
	jsonMIMEType = "application/json"
)

// Model call kinds, used as metric labels and log fields.
const (
	KindExtract  = "extract"
	KindInsights = "insights"
	KindGoalPlan = "goal_plan"
)

// User-facing messages. Underlying causes are only logged.
const (
	MsgExtractionFailed = "Failed to analyze the document. The format may be unsupported or the AI could not process the content."
	MsgInsightsFailed   = "Failed to generate AI insights. Please try again."
	MsgGoalPlanFailed   = "Failed to generate AI goal plan. Please try again."
	MsgUnreadablePDF    = "Could not read this PDF. It may be corrupted or unsupported."
	MsgUnknownFailure   = "An unknown error occurred during processing."

	MsgProcessingFailedPrefix  = "Processing failed for one or more files:\n- "
	MsgNoTransactionsFound     = "We successfully processed your document(s), but couldn't find any transactional data."
	MsgNoTransactionsExtracted = "No transactions could be extracted from the selected files."
)
