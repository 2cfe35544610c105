package debounce

import "github.com/nholik/hlfb-sentinel/internal/hlfb"

// DefaultWindow is the number of identical samples required by default.
const DefaultWindow = 3

// Filter accepts a new signal value only after it has been observed for
// Window consecutive samples.
type Filter struct {
	window    int
	candidate hlfb.Signal
	count     int
	stable    hlfb.Signal
}

// New returns a filter whose stable output starts as Unknown.
// Windows below one are treated as one.
func New(window int) *Filter {
	if window < 1 {
		window = 1
	}
	f := &Filter{window: window}
	f.Reset()
	return f
}

// Window returns the configured sample count.
func (f *Filter) Window() int {
	return f.window
}

// Push feeds one sample and returns the stable value and whether it changed.
func (f *Filter) Push(sample hlfb.Signal) (hlfb.Signal, bool) {
	if sample == f.candidate {
		if f.count < f.window {
			f.count++
		}
	} else {
		f.candidate = sample
		f.count = 1
	}

	if f.count >= f.window && f.stable != f.candidate {
		f.stable = f.candidate
		return f.stable, true
	}
	return f.stable, false
}

// Stable returns the last accepted value.
func (f *Filter) Stable() hlfb.Signal {
	return f.stable
}

// Reset returns the filter to its startup state.
func (f *Filter) Reset() {
	f.candidate = hlfb.Unknown
	f.count = 0
	f.stable = hlfb.Unknown
}
