package inventory

import (
	"proxfw.dev/proxfw/internal/fwconf"
)

// HostAddressProvider supplies the host's own interface addresses; the
// compiler uses them to synthesize the management IP set when the
// cluster config does not declare one.
type HostAddressProvider interface {
	InterfaceCidrs() ([]fwconf.Cidr, error)
}

// StaticHostAddresses is a fixed provider, used by tests and when the
// management networks are known up front.
type StaticHostAddresses []fwconf.Cidr

func (s StaticHostAddresses) InterfaceCidrs() ([]fwconf.Cidr, error) {
	return s, nil
}
