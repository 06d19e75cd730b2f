package scalarweb

// Device error codes found in the first element of a result's error array
const (
	ErrUnknown              = -1
	ErrNone                 = 0
	ErrAny                  = 1
	ErrTimeout              = 2
	ErrIllegalArgument      = 3
	ErrIllegalRequest       = 5
	ErrIllegalState         = 7
	ErrNotImplemented       = 12
	ErrUnsupportedVersion   = 14
	ErrUnsupportedOperation = 15
	ErrDisplayIsOff         = 40005

	// ErrHTTP is local to this module: the HTTP exchange itself failed
	ErrHTTP = 1000
)
