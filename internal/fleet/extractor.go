package fleet

import (
	"fmt"
	"strings"
)

// Extractor reads connection metadata from a started container.
type Extractor interface {
	Extract(h StartedHandle, ports []int) (*StartedContainerInfo, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(h StartedHandle, ports []int) (*StartedContainerInfo, error)

// Extract calls f(h, ports).
func (f ExtractorFunc) Extract(h StartedHandle, ports []int) (*StartedContainerInfo, error) {
	return f(h, ports)
}

// ExtractMetaInfo returns the host address, name and port mappings of h.
// Requested ports without a published mapping are left out of PortMappings.
func ExtractMetaInfo(h StartedHandle, ports []int) (*StartedContainerInfo, error) {
	info := &StartedContainerInfo{
		IP:           h.Host(),
		Name:         h.Name(),
		PortMappings: make(map[int]int, len(ports)),
		Handle:       h,
	}
	for _, p := range ports {
		if mapped, ok := h.MappedPort(p); ok {
			info.PortMappings[p] = mapped
		}
	}
	return info, nil
}

// StrictExtractMetaInfo behaves like ExtractMetaInfo but fails when any
// requested port has no published mapping.
func StrictExtractMetaInfo(h StartedHandle, ports []int) (*StartedContainerInfo, error) {
	info, _ := ExtractMetaInfo(h, ports) //nolint:errcheck // never fails

	var missing []string
	for _, p := range ports {
		if _, ok := info.PortMappings[p]; !ok {
			missing = append(missing, fmt.Sprintf("%d", p))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("container %s has no published mapping for port(s) %s", info.Name, strings.Join(missing, ", "))
	}
	return info, nil
}
