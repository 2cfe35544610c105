package hlfb

import "fmt"

// Signal is the decoded state of an HLFB feedback line.
type Signal string

const (
	Unknown    Signal = "UNKNOWN"
	Asserted   Signal = "ASSERTED"
	Deasserted Signal = "DEASSERTED"
)

// Reading is one raw sample delivered by the hardware layer.
// Valid is false when no value could be read for the tick.
type Reading struct {
	Raw   int  `json:"raw"`
	Valid bool `json:"valid"`
}

// Sample builds a valid reading.
func Sample(raw int) Reading {
	return Reading{Raw: raw, Valid: true}
}

// Decoder maps raw feedback codes onto a Signal.
//
// Codes outside [Min, Max] and codes in the dead band between DeassertAt and
// AssertAt decode to Unknown.
type Decoder struct {
	Min        int `yaml:"min" json:"min"`
	Max        int `yaml:"max" json:"max"`
	DeassertAt int `yaml:"deassert_at" json:"deassert_at"`
	AssertAt   int `yaml:"assert_at" json:"assert_at"`
}

// DigitalDecoder treats the line as a plain 0/1 input.
func DigitalDecoder() Decoder {
	return Decoder{Min: 0, Max: 1, DeassertAt: 0, AssertAt: 1}
}

// Validate checks that the thresholds describe a usable range.
func (d Decoder) Validate() error {
	if d.Min > d.Max {
		return fmt.Errorf("decoder: min %d greater than max %d", d.Min, d.Max)
	}
	if d.DeassertAt >= d.AssertAt {
		return fmt.Errorf("decoder: deassert_at %d must be below assert_at %d", d.DeassertAt, d.AssertAt)
	}
	if d.DeassertAt < d.Min || d.AssertAt > d.Max {
		return fmt.Errorf("decoder: thresholds %d..%d outside range %d..%d", d.DeassertAt, d.AssertAt, d.Min, d.Max)
	}
	return nil
}

// Decode never fails; anything it cannot interpret is Unknown.
func (d Decoder) Decode(r Reading) Signal {
	if !r.Valid || r.Raw < d.Min || r.Raw > d.Max {
		return Unknown
	}
	switch {
	case r.Raw >= d.AssertAt:
		return Asserted
	case r.Raw <= d.DeassertAt:
		return Deasserted
	default:
		return Unknown
	}
}
