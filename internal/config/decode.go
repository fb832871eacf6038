package config

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by option structs that want defaults applied after
// decoding.
type Setter interface {
	ApplyDefaults()
}

// Decode decodes a raw option map (e.g. [store.drivers.sqlite]) into the
// target pointer. If the target implements Setter, ApplyDefaults is called.
func Decode(input map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return err
	}
	if s, ok := target.(Setter); ok {
		s.ApplyDefaults()
	}
	return nil
}

// DecodeWithUnused decodes input into target and returns unused keys, sorted.
func DecodeWithUnused(input map[string]any, target any) ([]string, error) {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: &md,
		Result:   target,
		TagName:  "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, err
	}
	if s, ok := target.(Setter); ok {
		s.ApplyDefaults()
	}
	unused := md.Unused
	sort.Strings(unused)
	return unused, nil
}

// MustDecodeStrict decodes input into target and fails on unused keys.
func MustDecodeStrict(input map[string]any, target any) error {
	unused, err := DecodeWithUnused(input, target)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		return fmt.Errorf("unused config keys: %v", unused)
	}
	return nil
}
