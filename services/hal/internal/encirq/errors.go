package encirq

import "rotary-go/errcode"

var (
	errNoPins    = &errcode.E{C: errcode.InvalidParams, Op: "encirq", Msg: "missing pin"}
	errDuplicate = &errcode.E{C: errcode.PinInUse, Op: "encirq", Msg: "encoder already open"}
)
