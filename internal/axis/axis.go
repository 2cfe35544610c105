package axis

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAxis is returned when a name or index is outside the fixed axis set.
var ErrUnknownAxis = errors.New("unknown axis")

// ID identifies one of the five motorized axes.
type ID int

// Declaration order is the enumeration order used for all fleet iteration.
const (
	X ID = iota
	XP
	Y
	Z
	A
)

// Count is the fixed number of monitored axes.
const Count = 5

var names = [Count]string{"X", "XP", "Y", "Z", "A"}

// All returns every axis in enumeration order.
func All() []ID {
	return []ID{X, XP, Y, Z, A}
}

// Valid reports whether id belongs to the fixed axis set.
func (id ID) Valid() bool {
	return id >= X && id <= A
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("axis(%d)", int(id))
	}
	return names[id]
}

// Parse resolves an axis name case-insensitively.
func Parse(value string) (ID, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	for i, name := range names {
		if name == trimmed {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAxis, value)
}

// Check returns an error wrapping ErrUnknownAxis for ids outside the set.
func Check(id ID) error {
	if id.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownAxis, int(id))
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if err := Check(id); err != nil {
		return nil, err
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
