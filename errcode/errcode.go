package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	InvalidMode       Code = "invalid_mode"
	UnknownCapability Code = "unknown_capability"
	UnknownDevice     Code = "unknown_device"
	UnknownType       Code = "unknown_type"
	HALNotReady       Code = "hal_not_ready"
	InvalidTopic      Code = "invalid_topic"

	UnknownPin         Code = "unknown_pin"
	PinInUse           Code = "pin_in_use"
	UnknownBus         Code = "unknown_bus"
	IRQFailed          Code = "irq_failed"
	EncoderUnavailable Code = "encoder_unavailable"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap returns an *E for op with code c and cause err.
func Wrap(c Code, op string, err error) error {
	e := &E{C: c, Op: op, Err: err}
	if err != nil {
		e.Msg = err.Error()
	}
	return e
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
