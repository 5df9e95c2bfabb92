package core

import (
	"context"

	"rotary-go/errcode"
	"rotary-go/types"
)

// ---- Capability & device model ----

// CapAddr is the public address of one capability.
type CapAddr struct {
	Domain string
	Kind   types.Kind
	Name   string
}

type CapabilitySpec struct {
	Domain string // empty => default for kind
	Kind   types.Kind
	Name   string // empty => device id
	Info   types.Info
}

// EnqueueResult is the synchronous outcome of a control. Work that completes
// later is reported through the device's events.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	// Control must not block the HAL loop.
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error // release claimed resources
}

// Builder input
type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
