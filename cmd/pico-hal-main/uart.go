//go:build rp2040 || rp2350

package main

import (
	"context"
	"errors"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"rotary-go/services/bridge"
)

// uartLink adapts uartx to the bridge's io.ReadWriteCloser.
type uartLink struct {
	ctx context.Context
	u   *uartx.UART
}

func (l uartLink) Read(b []byte) (int, error)  { return l.u.RecvSomeContext(l.ctx, b) }
func (l uartLink) Write(b []byte) (int, error) { return l.u.Write(b) }
func (l uartLink) Close() error                { return nil }

func dialUART(ctx context.Context, c bridge.UARTConfig) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch {
	case c.TxPin == 0 && c.RxPin == 1:
		hw = uartx.UART0
	case c.TxPin == 4 && c.RxPin == 5:
		hw = uartx.UART1
	default:
		return nil, errors.New("no uart on those pins")
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(c.Baud),
		TX:       machine.Pin(c.TxPin),
		RX:       machine.Pin(c.RxPin),
	}); err != nil {
		return nil, err
	}
	return uartLink{ctx: ctx, u: hw}, nil
}
