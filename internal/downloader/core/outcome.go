package core

import "fmt"

// TransferKind tags the result of a single transfer attempt.
type TransferKind int

const (
	TransferSuccess TransferKind = iota
	TransferNetworkError
	TransferHTTPStatus
	TransferIOError
	TransferInterrupted
)

// String renders the kind for logs.
func (k TransferKind) String() string {
	switch k {
	case TransferSuccess:
		return "success"
	case TransferNetworkError:
		return "network error"
	case TransferHTTPStatus:
		return "http status error"
	case TransferIOError:
		return "io error"
	case TransferInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// TransferOutcome is the result of one attempt to stream a file.
type TransferOutcome struct {
	Kind       TransferKind
	Bytes      uint64
	StatusCode int
	Err        error
}

// Succeeded reports whether the attempt wrote the full body.
func (o TransferOutcome) Succeeded() bool {
	return o.Kind == TransferSuccess
}

// Interrupted reports whether the attempt stopped because of cancellation.
func (o TransferOutcome) Interrupted() bool {
	return o.Kind == TransferInterrupted
}

// Cause returns a human-readable description of a failed attempt.
func (o TransferOutcome) Cause() string {
	switch o.Kind {
	case TransferSuccess:
		return ""
	case TransferHTTPStatus:
		return fmt.Sprintf("HTTP error: %d", o.StatusCode)
	case TransferInterrupted:
		return "download interrupted"
	}
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	}
	return o.Kind.String()
}

func transferSuccess(n uint64) TransferOutcome {
	return TransferOutcome{Kind: TransferSuccess, Bytes: n}
}

func transferFailure(kind TransferKind, n uint64, err error) TransferOutcome {
	return TransferOutcome{Kind: kind, Bytes: n, Err: err}
}

func transferStatus(code int) TransferOutcome {
	return TransferOutcome{Kind: TransferHTTPStatus, StatusCode: code}
}

func transferInterrupted(n uint64) TransferOutcome {
	return TransferOutcome{Kind: TransferInterrupted, Bytes: n}
}

// FileKind tags the result of one manifest entry.
type FileKind int

const (
	FileAlreadyValid FileKind = iota
	FileDownloaded
	FileFailed
	FileSkipped
)

// String renders the kind for logs and the history store.
func (k FileKind) String() string {
	switch k {
	case FileAlreadyValid:
		return "already-valid"
	case FileDownloaded:
		return "downloaded"
	case FileFailed:
		return "failed"
	case FileSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Failure reasons recorded on FileFailed / FileSkipped outcomes.
const (
	ReasonAllMirrorsFailed = "all mirrors failed"
	ReasonChecksumMismatch = "checksum mismatch"
	ReasonSizeMismatch     = "size mismatch"
	ReasonInterrupted      = "interrupted"
)

// FileOutcome is the result of processing one manifest entry.
type FileOutcome struct {
	Kind   FileKind
	Reason string
	// Mirror is the index of the mirror that served the file, -1 when none did.
	Mirror int
}

// Succeeded reports whether the entry is present and valid on disk.
func (o FileOutcome) Succeeded() bool {
	return o.Kind == FileAlreadyValid || o.Kind == FileDownloaded
}

func alreadyValid() FileOutcome {
	return FileOutcome{Kind: FileAlreadyValid, Mirror: -1}
}

func downloaded(mirror int) FileOutcome {
	return FileOutcome{Kind: FileDownloaded, Mirror: mirror}
}

func failed(reason string, mirror int) FileOutcome {
	return FileOutcome{Kind: FileFailed, Reason: reason, Mirror: mirror}
}

func skipped() FileOutcome {
	return FileOutcome{Kind: FileSkipped, Reason: ReasonInterrupted, Mirror: -1}
}
