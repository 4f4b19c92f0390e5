package hegel

import (
	"context"
	"fmt"
	"net"
	"strings"
)

const (
	DefaultAuthority = "hegel.packet.net:50060"
	lab1Authority    = "hegel-lab1.packet.net:50060"
	lab1Facility     = "lab1"
)

type srvLookupFunc func(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)

// Resolver discovers the hegel authority serving a facility.
type Resolver struct {
	lookupSRV srvLookupFunc
}

// NewResolver returns a Resolver using the system DNS resolver.
func NewResolver() *Resolver {
	return &Resolver{lookupSRV: net.DefaultResolver.LookupSRV}
}

// Authority returns the host:port of the hegel serving the facility.
//
// The _grpc._tcp SRV record of hegel.<facility>.packet.net is looked up,
// when that fails the default authority is returned.
func (r *Resolver) Authority(ctx context.Context, facility string) string {
	_, addrs, err := r.lookupSRV(ctx, "grpc", "tcp", "hegel."+facility+".packet.net")
	if err == nil && len(addrs) > 0 {
		return fmt.Sprintf("%s:%d", strings.TrimSuffix(addrs[0].Target, "."), addrs[0].Port)
	}

	if facility == lab1Facility {
		return lab1Authority
	}

	return DefaultAuthority
}
