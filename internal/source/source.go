package source

import (
	"context"
	"sync"

	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/hlfb"
)

// Source delivers one raw feedback reading per axis for each tick.
// Axes absent from the result are treated as unreadable.
type Source interface {
	Sample(ctx context.Context) (map[axis.ID]hlfb.Reading, error)
}

// Kind selects the Modbus object type an axis is read from.
type Kind string

const (
	KindCoil            Kind = "coil"
	KindDiscreteInput   Kind = "discrete_input"
	KindInputRegister   Kind = "input_register"
	KindHoldingRegister Kind = "holding_register"
)

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCoil, KindDiscreteInput, KindInputRegister, KindHoldingRegister:
		return true
	default:
		return false
	}
}

// Channel is the hardware address of one axis's HLFB line.
type Channel struct {
	Kind    Kind
	Address uint16
}

// Static returns fixed readings. It backs simulation mode and tests.
type Static struct {
	mu       sync.RWMutex
	readings map[axis.ID]hlfb.Reading
}

// NewStatic returns a source that reports raw for every axis.
func NewStatic(raw int) *Static {
	readings := make(map[axis.ID]hlfb.Reading, axis.Count)
	for _, id := range axis.All() {
		readings[id] = hlfb.Sample(raw)
	}
	return &Static{readings: readings}
}

// Set replaces the reading for one axis.
func (s *Static) Set(id axis.ID, reading hlfb.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[id] = reading
}

// Sample implements Source.
func (s *Static) Sample(ctx context.Context) (map[axis.ID]hlfb.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[axis.ID]hlfb.Reading, len(s.readings))
	for id, reading := range s.readings {
		out[id] = reading
	}
	return out, nil
}
