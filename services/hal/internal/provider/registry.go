package provider

import (
	"sync"

	"tinygo.org/x/drivers"

	"rotary-go/errcode"
	"rotary-go/services/hal/internal/core"
	"rotary-go/services/hal/internal/encirq"
)

// Ensure the provider satisfies the contracts at compile time.
var _ core.ResourceRegistry = (*Registry)(nil)

// Registry hands out pins with single ownership, shared I²C buses and
// encoder streams backed by one encirq worker.
type Registry struct {
	mu sync.Mutex

	pins core.PinFactory
	i2c  core.I2CFactory
	enc  *encirq.Worker

	pinOwners map[int]string            // pin -> devID
	i2cUsers  map[string]map[string]int // bus -> devID -> claims
}

func New(pins core.PinFactory, i2c core.I2CFactory, enc *encirq.Worker) *Registry {
	return &Registry{
		pins:      pins,
		i2c:       i2c,
		enc:       enc,
		pinOwners: make(map[int]string),
		i2cUsers:  make(map[string]map[string]int),
	}
}

func (r *Registry) ClaimGPIO(devID string, n int) (core.GPIOHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pins == nil {
		return nil, errcode.UnknownPin
	}
	h, ok := r.pins.ByNumber(n)
	if !ok {
		return nil, errcode.UnknownPin
	}
	if owner, inUse := r.pinOwners[n]; inUse && owner != devID {
		return nil, errcode.PinInUse
	}
	r.pinOwners[n] = devID
	return h, nil
}

func (r *Registry) ReleaseGPIO(devID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.pinOwners[n]; ok && owner == devID {
		// Leave the line as a plain input.
		if h, ok := r.pins.ByNumber(n); ok {
			_ = h.ConfigureInput(core.PullNone)
		}
		delete(r.pinOwners, n)
	}
}

// PinOwner reports which device holds pin n.
func (r *Registry) PinOwner(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.pinOwners[n]
	return id, ok
}

func (r *Registry) ClaimI2C(devID string, id string) (drivers.I2C, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.i2c == nil {
		return nil, errcode.UnknownBus
	}
	b, ok := r.i2c.ByID(id)
	if !ok {
		return nil, errcode.UnknownBus
	}
	users := r.i2cUsers[id]
	if users == nil {
		users = make(map[string]int)
		r.i2cUsers[id] = users
	}
	users[devID]++
	return b, nil
}

func (r *Registry) ReleaseI2C(devID string, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.i2cUsers[id]
	if users[devID] <= 1 {
		delete(users, devID)
	} else {
		users[devID]--
	}
	if len(users) == 0 {
		delete(r.i2cUsers, id)
	}
}

// I2CUsers reports how many devices hold bus id.
func (r *Registry) I2CUsers(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.i2cUsers[id])
}

func (r *Registry) OpenEncoder(devID string, spec core.EncoderSpec) (core.EncoderStream, error) {
	if r.enc == nil {
		return nil, errcode.EncoderUnavailable
	}
	s, err := r.enc.Open(devID, spec)
	if err != nil {
		return nil, err
	}
	return s, nil
}
