package confloader

import "errors"

// ErrReadBytesNotSupported is returned when ReadBytes is called on the map
// provider.
var ErrReadBytesNotSupported = errors.New("confloader: ReadBytes not supported by map provider, use Read() instead")

// mapProvider feeds a settings map (defaults, test fixtures) into koanf.
// koanf providers implement either ReadBytes or Read; a map has no byte
// form, so only Read is supported.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

// Read returns the configuration map.
func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
