package object

import "errors"

// Errors reported while resolving or decoding objects. Callers match them with
// errors.Is; the returned errors wrap these with the object or file involved.
var (
	ErrObjectNotFound          = errors.New("object not found")
	ErrUnexpectedObjectType    = errors.New("unexpected object type")
	ErrHashMismatch            = errors.New("object hash mismatch")
	ErrMalformedObject         = errors.New("malformed object")
	ErrCorruptIndex            = errors.New("corrupt index")
	ErrUnsupportedIndexVersion = errors.New("unsupported index version")
	ErrUnsupportedLargeOffset  = errors.New("unsupported large pack offset")
	ErrTruncatedInput          = errors.New("truncated input")
	ErrTruncatedTree           = errors.New("truncated tree")
	ErrInvalidDeltaOpcode      = errors.New("invalid delta opcode")
	ErrDeltaSizeMismatch       = errors.New("delta size mismatch")
	ErrDeltaCopyOutOfRange     = errors.New("delta copy out of range")
)
