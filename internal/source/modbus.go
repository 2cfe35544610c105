package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/hlfb"
	"github.com/rs/zerolog"
)

// Reader is the subset of modbus.Client used for sampling.
type Reader interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// ModbusConfig is the minimal transport config.
type ModbusConfig struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
}

// Modbus samples HLFB lines from a Modbus TCP I/O module, one object per axis.
type Modbus struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	handler  *modbus.TCPClientHandler
	reader   Reader
	channels map[axis.ID]Channel
}

// NewModbus connects to the I/O module.
func NewModbus(cfg ModbusConfig, channels map[axis.ID]Channel, logger zerolog.Logger) (*Modbus, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus source: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus source: connect %s: %w", cfg.Endpoint, err)
	}

	m := NewModbusWithReader(modbus.NewClient(h), channels, logger)
	m.handler = h
	return m, nil
}

// NewModbusWithReader builds a source over an existing reader.
func NewModbusWithReader(reader Reader, channels map[axis.ID]Channel, logger zerolog.Logger) *Modbus {
	copied := make(map[axis.ID]Channel, len(channels))
	for id, ch := range channels {
		copied[id] = ch
	}
	return &Modbus{
		logger:   logger,
		reader:   reader,
		channels: copied,
	}
}

// Close closes the TCP connection.
func (m *Modbus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil {
		return nil
	}
	return m.handler.Close()
}

// Sample implements Source. A failed read only invalidates its own axis; an
// error is returned when no configured axis could be read.
func (m *Modbus) Sample(ctx context.Context) (map[axis.ID]hlfb.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	readings := make(map[axis.ID]hlfb.Reading, len(m.channels))
	var errs []error
	for _, id := range axis.All() {
		ch, ok := m.channels[id]
		if !ok {
			continue
		}
		raw, err := m.read(ch)
		if err != nil {
			m.logger.Debug().Err(err).Str("axis", id.String()).Msg("hlfb read failed")
			readings[id] = hlfb.Reading{}
			errs = append(errs, fmt.Errorf("axis %s: %w", id, err))
			continue
		}
		readings[id] = hlfb.Sample(raw)
	}

	if len(errs) > 0 && len(errs) == len(m.channels) {
		return readings, errors.Join(errs...)
	}
	return readings, nil
}

func (m *Modbus) read(ch Channel) (int, error) {
	switch ch.Kind {
	case KindCoil:
		data, err := m.reader.ReadCoils(ch.Address, 1)
		return unpackBit(data, err)
	case KindDiscreteInput:
		data, err := m.reader.ReadDiscreteInputs(ch.Address, 1)
		return unpackBit(data, err)
	case KindInputRegister:
		data, err := m.reader.ReadInputRegisters(ch.Address, 1)
		return unpackRegister(data, err)
	case KindHoldingRegister:
		data, err := m.reader.ReadHoldingRegisters(ch.Address, 1)
		return unpackRegister(data, err)
	default:
		return 0, fmt.Errorf("unsupported kind %q", ch.Kind)
	}
}

func unpackBit(data []byte, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, errors.New("modbus: short read-bits payload")
	}
	return int(data[0] & 0x01), nil
}

func unpackRegister(data []byte, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, errors.New("modbus: short read-registers payload")
	}
	return int(binary.BigEndian.Uint16(data[:2])), nil
}
