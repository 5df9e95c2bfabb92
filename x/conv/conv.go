// Package conv formats integers into caller-owned buffers without fmt or
// strconv, so status output on MCU builds does not allocate.
package conv

// AppendUint appends the base-10 representation of n to dst.
func AppendUint(dst []byte, n uint64) []byte {
	var tmp [20]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return append(dst, tmp[i:]...)
}

// AppendInt appends the base-10 representation of n to dst.
// Negative values are prefixed with '-'.
func AppendInt(dst []byte, n int64) []byte {
	if n < 0 {
		dst = append(dst, '-')
		// Two's complement negation is correct for math.MinInt64 too.
		return AppendUint(dst, uint64(^n)+1)
	}
	return AppendUint(dst, uint64(n))
}
