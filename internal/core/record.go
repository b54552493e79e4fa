package core

// Record is the structured outcome of a diagnostic call. Every call ends in
// exactly one record; failures are records too, never panics or Go errors.
type Record interface {
	Succeeded() bool
	ErrorText() string
	RecordKind() OutputKind
}

// Status is embedded by every record.
type Status struct {
	Success bool   `json:"success" yaml:"success"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// OK returns a successful status.
func OK() Status { return Status{Success: true} }

// Succeeded implements Record.
func (s Status) Succeeded() bool { return s.Success }

// ErrorText implements Record.
func (s Status) ErrorText() string { return s.Error }

// Failure is the record returned for any unsuccessful call. It has no domain
// fields, so a failed call can never carry partially parsed data.
type Failure struct {
	Status
	Kind     OutputKind    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Category ErrorCategory `json:"category,omitempty" yaml:"category,omitempty"`
	Code     string        `json:"code,omitempty" yaml:"code,omitempty"`
}

// RecordKind implements Record.
func (f *Failure) RecordKind() OutputKind { return f.Kind }

// NewFailure converts err into a failure record of the given kind.
func NewFailure(kind OutputKind, err error) *Failure {
	de := AsDomainError(err)
	if de == nil {
		de = ErrInternal("unknown failure")
	}
	msg := de.Message
	if de.Cause != nil && de.Category != ErrCatInternal {
		msg += ": " + de.Cause.Error()
	}
	return &Failure{
		Status:   Status{Success: false, Error: msg},
		Kind:     kind,
		Category: de.Category,
		Code:     de.Code,
	}
}

// FailureFromResult builds a failure record from an unsuccessful execution.
func FailureFromResult(kind OutputKind, res ExecutionResult) *Failure {
	if res.Err != nil {
		return NewFailure(kind, res.Err)
	}
	return NewFailure(kind, ErrTool(CodeToolFailed, "command failed"))
}
