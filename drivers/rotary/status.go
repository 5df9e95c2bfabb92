package rotary

import "rotary-go/x/conv"

// AppendStatus appends the status line "pos:<n>, dir:<d>\r\n" to dst, with
// d the numeric direction (-1, 0 or 1).
func AppendStatus(dst []byte, pos int, dir Direction) []byte {
	dst = append(dst, "pos:"...)
	dst = conv.AppendInt(dst, int64(pos))
	dst = append(dst, ", dir:"...)
	dst = conv.AppendInt(dst, int64(dir))
	return append(dst, '\r', '\n')
}
