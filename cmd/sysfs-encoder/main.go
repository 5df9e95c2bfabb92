//go:build linux && !baremetal

// sysfs-encoder decodes an encoder on the GPIO header of a Linux board and
// prints one status line per position change.
//
// The configuration file holds one section per encoder:
//
//	[knob]
//	pins=17,27     # clk, dt
//	mode=four3     # four3, four0 or two03 (optional)
//	start=0        # initial position (optional)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/aamcrae/config"

	"rotary-go/drivers/rotary"
	"rotary-go/drivers/sysfsgpio"
)

var (
	configFile = flag.String("config", "encoder.conf", "Configuration file")
	section    = flag.String("section", "knob", "Encoder section in the configuration file")
)

type encoderConfig struct {
	Clk, Dt int
	Mode    rotary.LatchMode
	Start   int
}

func readConfig(conf *config.Config, name string) (*encoderConfig, error) {
	s := conf.GetSection(name)
	if s == nil {
		return nil, fmt.Errorf("no config for %s", name)
	}
	var ec encoderConfig
	n, err := s.Parse("pins", "%d,%d", &ec.Clk, &ec.Dt)
	if err != nil {
		return nil, fmt.Errorf("pins: %v", err)
	}
	if n != 2 {
		return nil, fmt.Errorf("pins: argument count")
	}
	if m, err := s.GetArg("mode"); err == nil {
		if ec.Mode, err = rotary.ParseLatchMode(m); err != nil {
			return nil, fmt.Errorf("mode %q: %v", m, err)
		}
	}
	if _, err := s.GetArg("start"); err == nil {
		if _, err := s.Parse("start", "%d", &ec.Start); err != nil {
			return nil, fmt.Errorf("start: %v", err)
		}
	}
	return &ec, nil
}

func main() {
	flag.Parse()
	conf, err := config.ParseFile(*configFile)
	if err != nil {
		log.Fatalf("%s: %v", *configFile, err)
	}
	ec, err := readConfig(conf, *section)
	if err != nil {
		log.Fatalf("%s: %v", *configFile, err)
	}
	enc, err := sysfsgpio.Open(ec.Clk, ec.Dt, ec.Mode)
	if err != nil {
		log.Fatalf("encoder %d,%d: %v", ec.Clk, ec.Dt, err)
	}
	defer enc.Close()
	enc.SetPosition(ec.Start)
	log.Printf("%s: clk=gpio%d dt=gpio%d mode=%s", *section, ec.Clk, ec.Dt, ec.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var line []byte
	err = enc.Run(ctx, func(pos int, dir rotary.Direction) {
		line = rotary.AppendStatus(line[:0], pos, dir)
		os.Stdout.Write(line)
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("%s: %v", *section, err)
	}
}
