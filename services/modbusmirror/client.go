package modbusmirror

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// TCPClient is one Modbus TCP connection. Requests are serialised because
// the unit ID lives on the shared handler.
type TCPClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

type ClientConfig struct {
	Endpoint string // host:port
	Timeout  time.Duration
}

func Dial(cfg ClientConfig) (*TCPClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbusmirror: endpoint required")
	}
	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	if err := h.Connect(); err != nil {
		return nil, err
	}
	return &TCPClient{handler: h, client: modbus.NewClient(h)}, nil
}

func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteRegisters writes regs as holding registers starting at addr (FC 16).
func (c *TCPClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler.SlaveId = unitID
	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
