package service

// Kind classifies a service failure for the transport layer.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindUnauthorized    Kind = "unauthorized"
	KindExternalService Kind = "external_service"
	KindConflict        Kind = "conflict"
	KindValidation      Kind = "validation"
)

// Error carries a failure kind plus a human-readable reason. The
// reason is written for the end user and is safe to return verbatim.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func notFoundErr(reason string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func invalidStateErr(reason string) *Error {
	return &Error{Kind: KindInvalidState, Reason: reason}
}

func unauthorizedErr(reason string) *Error {
	return &Error{Kind: KindUnauthorized, Reason: reason}
}

func externalErr(reason string, err error) *Error {
	return &Error{Kind: KindExternalService, Reason: reason, Err: err}
}

func conflictErr(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

func validationErr(reason string, err error) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Err: err}
}
