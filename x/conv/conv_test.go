package conv

import (
	"math"
	"testing"
)

func TestAppendInt(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{7, "7"},
		{-1, "-1"},
		{1234567890, "1234567890"},
		{-42, "-42"},
		{math.MaxInt64, "9223372036854775807"},
		{math.MinInt64, "-9223372036854775808"},
	}
	for _, c := range cases {
		if got := string(AppendInt(nil, c.n)); got != c.want {
			t.Errorf("AppendInt(%d) = %q, want %q", c.n, got, c.want)
		}
	}
}

func TestAppendUintKeepsPrefix(t *testing.T) {
	buf := make([]byte, 0, 32)
	buf = append(buf, "pos:"...)
	buf = AppendUint(buf, math.MaxUint64)
	if got := string(buf); got != "pos:18446744073709551615" {
		t.Fatalf("got %q", got)
	}
}

func TestAppendIntNoAllocWithCapacity(t *testing.T) {
	buf := make([]byte, 0, 32)
	allocs := testing.AllocsPerRun(100, func() {
		buf = AppendInt(buf[:0], -123456)
	})
	if allocs != 0 {
		t.Fatalf("allocs = %v, want 0", allocs)
	}
}
