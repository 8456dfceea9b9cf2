package errors

// Generic error code definitions used as sensible defaults across modules.
const (
	CodeSystemGeneric     = "SYS-000"
	CodeNetworkGeneric    = "NET-000"
	CodeConfigGeneric     = "CFG-000"
	CodeValidationGeneric = "VAL-000"
	CodeDatabaseGeneric   = "DB-000"
)

// Specific codes raised by the downloader and its collaborators.
const (
	CodeManifestEmpty   = "CFG-001"
	CodeMirrorsEmpty    = "CFG-002"
	CodeManifestInvalid = "CFG-003"

	CodeMirrorUnavailable = "NET-001"
	CodeTransferFailed    = "NET-002"

	CodeIntegrityMismatch = "VAL-001"

	CodeDestinationUnusable = "SYS-001"
	CodeInsufficientSpace   = "SYS-002"

	CodeHistoryStore = "DB-001"
	CodeRunNotFound  = "DB-002"
)
