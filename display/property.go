package display

import (
	"fmt"

	"github.com/NeowayLabs/kmsflip/mode"
)

// PropertySource resolves property descriptions.
type PropertySource interface {
	Property(id uint32) (*mode.Property, error)
}

// LookupProperty returns the current value of the property called name
// in props. Properties are resolved in order and the scan stops at the
// first exact match. Descriptions that cannot be read are skipped.
func LookupProperty(src PropertySource, props *mode.ObjectProperties, name string) (uint64, error) {
	for i, id := range props.Props {
		p, err := src.Property(id)
		if err != nil {
			continue
		}
		if p.Name == name && i < len(props.Values) {
			return props.Values[i], nil
		}
	}
	return 0, fmt.Errorf("%w: %q on object %d", ErrPropertyNotFound, name, props.ObjectID)
}
