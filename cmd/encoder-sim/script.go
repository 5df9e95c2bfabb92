//go:build !rp2040 && !rp2350

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Script commands, one per line; '#' starts a comment.
//
//	turn <device> cw|ccw [detents]
//	set  <device> <position>
//	read <device>
//	sleep <duration>
type op uint8

const (
	opTurn op = iota
	opSet
	opRead
	opSleep
)

type step struct {
	op     op
	device string
	cw     bool
	count  int
	pos    int
	d      time.Duration
	line   int
}

func parseScript(r io.Reader) ([]step, error) {
	var out []step
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		f := strings.Fields(text)
		if len(f) == 0 {
			continue
		}
		s, err := parseStep(f)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		s.line = n
		out = append(out, s)
	}
	return out, sc.Err()
}

func parseStep(f []string) (step, error) {
	switch f[0] {
	case "turn":
		if len(f) < 3 || len(f) > 4 {
			return step{}, fmt.Errorf("usage: turn <device> cw|ccw [detents]")
		}
		s := step{op: opTurn, device: f[1], count: 1}
		switch f[2] {
		case "cw":
			s.cw = true
		case "ccw":
		default:
			return step{}, fmt.Errorf("direction %q: want cw or ccw", f[2])
		}
		if len(f) == 4 {
			n, err := strconv.Atoi(f[3])
			if err != nil || n < 1 {
				return step{}, fmt.Errorf("detents %q: want a positive count", f[3])
			}
			s.count = n
		}
		return s, nil
	case "set":
		if len(f) != 3 {
			return step{}, fmt.Errorf("usage: set <device> <position>")
		}
		p, err := strconv.Atoi(f[2])
		if err != nil {
			return step{}, fmt.Errorf("position %q: %w", f[2], err)
		}
		return step{op: opSet, device: f[1], pos: p}, nil
	case "read":
		if len(f) != 2 {
			return step{}, fmt.Errorf("usage: read <device>")
		}
		return step{op: opRead, device: f[1]}, nil
	case "sleep":
		if len(f) != 2 {
			return step{}, fmt.Errorf("usage: sleep <duration>")
		}
		d, err := time.ParseDuration(f[1])
		if err != nil {
			return step{}, err
		}
		return step{op: opSleep, d: d}, nil
	}
	return step{}, fmt.Errorf("unknown command %q", f[0])
}

// defaultScript spins every device one detent each way.
func defaultScript(ids []string) []step {
	var out []step
	for _, id := range ids {
		out = append(out,
			step{op: opTurn, device: id, cw: true, count: 2},
			step{op: opTurn, device: id, count: 1},
			step{op: opSet, device: id, pos: 10},
			step{op: opRead, device: id},
		)
	}
	return out
}
