package config

import (
	"fmt"
	"os"

	"github.com/nholik/hlfb-sentinel/internal/axis"
	"github.com/nholik/hlfb-sentinel/internal/hlfb"
	"github.com/nholik/hlfb-sentinel/internal/source"
	"gopkg.in/yaml.v3"
)

// AxisMapping binds one axis to a hardware address.
type AxisMapping struct {
	Axis    string      `yaml:"axis"`
	Kind    source.Kind `yaml:"kind"`
	Address uint16      `yaml:"address"`
}

// AxisMapFile is the parsed YAML structure:
// decoder: {min, max, deassert_at, assert_at}
// axes: [{axis, kind, address}]
type AxisMapFile struct {
	Decoder *hlfb.Decoder `yaml:"decoder"`
	Axes    []AxisMapping `yaml:"axes"`
}

// AxisMap is the validated hardware layout for the fleet.
type AxisMap struct {
	Decoder  hlfb.Decoder
	Channels map[axis.ID]source.Channel
}

// DefaultAxisMap reads each axis from consecutive discrete inputs with a
// digital decoder.
func DefaultAxisMap() AxisMap {
	channels := make(map[axis.ID]source.Channel, axis.Count)
	for _, id := range axis.All() {
		channels[id] = source.Channel{Kind: source.KindDiscreteInput, Address: uint16(id)}
	}
	return AxisMap{Decoder: hlfb.DigitalDecoder(), Channels: channels}
}

// LoadAxisMap parses a YAML axis map from the given path.
// Returns DefaultAxisMap if path is empty.
func LoadAxisMap(path string) (AxisMap, error) {
	if path == "" {
		return DefaultAxisMap(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return AxisMap{}, fmt.Errorf("read axis map: %w", err)
	}

	var file AxisMapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return AxisMap{}, fmt.Errorf("parse axis map: %w", err)
	}

	return buildAxisMap(file)
}

func buildAxisMap(file AxisMapFile) (AxisMap, error) {
	result := AxisMap{
		Decoder:  hlfb.DigitalDecoder(),
		Channels: make(map[axis.ID]source.Channel, axis.Count),
	}
	if file.Decoder != nil {
		result.Decoder = *file.Decoder
	}
	if err := result.Decoder.Validate(); err != nil {
		return AxisMap{}, err
	}

	if len(file.Axes) == 0 {
		return AxisMap{}, fmt.Errorf("axis map contains no axes")
	}

	for i, m := range file.Axes {
		if m.Axis == "" {
			return AxisMap{}, fmt.Errorf("axis %d: axis is required", i)
		}
		id, err := axis.Parse(m.Axis)
		if err != nil {
			return AxisMap{}, fmt.Errorf("axis %d: %w", i, err)
		}
		if _, ok := result.Channels[id]; ok {
			return AxisMap{}, fmt.Errorf("axis %q: duplicate axis", id)
		}
		if !m.Kind.Valid() {
			return AxisMap{}, fmt.Errorf("axis %q: unknown kind %q", id, m.Kind)
		}
		result.Channels[id] = source.Channel{Kind: m.Kind, Address: m.Address}
	}

	return result, nil
}
