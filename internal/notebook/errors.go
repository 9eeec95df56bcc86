package notebook

import "fmt"

// ValidationError rejects a request before any work starts.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrorKind classifies workflow failures so transports can pick a status.
type ErrorKind int

// Failure kinds.
const (
	// KindUpstream is an unexpected Drive or storage failure.
	KindUpstream ErrorKind = iota
	// KindAuth means the access token was rejected.
	KindAuth
	// KindParentFolder means the configured parent folder is unusable.
	KindParentFolder
	// KindFolderNotFound means a target folder does not exist.
	KindFolderNotFound
	// KindFolderForbidden means the token cannot write to the target folder.
	KindFolderForbidden
	// KindNoFiles means nothing matched the requested files.
	KindNoFiles
	// KindNoUploads means every file upload failed.
	KindNoUploads
)

// FileError records one failed file upload.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// StepError is a workflow failure with a user-facing message.
type StepError struct {
	Kind ErrorKind
	// OperationID is set when an operation record was allocated.
	OperationID string
	Message     string
	Hint        string
	Tip         string
	Files       []FileError
	Err         error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StepError) Unwrap() error { return e.Err }

const (
	scopeTip   = "Make sure your access token has scope: https://www.googleapis.com/auth/drive"
	expiryTip  = "Access tokens expire after 1 hour. Make sure you use scope: https://www.googleapis.com/auth/drive"
	renewHint  = "Please get a new access token from OAuth Playground"
	invalidTok = "Invalid or expired access token"
)
