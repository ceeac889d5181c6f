package submission

import (
	"errors"

	"github.com/mirzahilmi/sealedreport/internal/common/constant"
)

var ErrPipelineNotReady = errors.New("submission: reviewer public key unavailable")

// SubmissionEncryptionError is the only error the pipeline returns. Error()
// is safe to show to the submitter; the cause stays reachable through
// errors.Is / errors.As for logging.
type SubmissionEncryptionError struct {
	Stage string
	cause error
}

func (e *SubmissionEncryptionError) Error() string {
	if errors.Is(e.cause, ErrPipelineNotReady) {
		return constant.MSG_NOT_READY
	}
	return constant.MSG_ENCRYPTION_FAILED
}

func (e *SubmissionEncryptionError) Unwrap() error { return e.cause }

// notReady keeps the key fetch failure in the chain next to ErrPipelineNotReady.
type notReady struct{ err error }

func (e notReady) Error() string {
	if e.err == nil {
		return ErrPipelineNotReady.Error()
	}
	return ErrPipelineNotReady.Error() + ": " + e.err.Error()
}

func (e notReady) Unwrap() []error {
	if e.err == nil {
		return []error{ErrPipelineNotReady}
	}
	return []error{ErrPipelineNotReady, e.err}
}
