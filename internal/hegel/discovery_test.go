package hegel

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolverAuthority(t *testing.T) {
	tests := []struct {
		name     string
		facility string
		lookup   srvLookupFunc
		expected string
	}{
		{
			"srv record",
			"ewr1",
			func(_ context.Context, service, proto, name string) (string, []*net.SRV, error) {
				assert.Equal(t, "grpc", service)
				assert.Equal(t, "tcp", proto)
				assert.Equal(t, "hegel.ewr1.packet.net", name)

				return "", []*net.SRV{{Target: "hegel-ewr1.example.net.", Port: 50061}}, nil
			},
			"hegel-ewr1.example.net:50061",
		},
		{
			"lookup error falls back to default",
			"ewr1",
			func(context.Context, string, string, string) (string, []*net.SRV, error) {
				return "", nil, errors.New("NXDOMAIN")
			},
			DefaultAuthority,
		},
		{
			"no records falls back to default",
			"sjc1",
			func(context.Context, string, string, string) (string, []*net.SRV, error) {
				return "", nil, nil
			},
			DefaultAuthority,
		},
		{
			"lab1 fallback",
			"lab1",
			func(context.Context, string, string, string) (string, []*net.SRV, error) {
				return "", nil, errors.New("NXDOMAIN")
			},
			"hegel-lab1.packet.net:50060",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &Resolver{lookupSRV: tc.lookup}
			assert.Equal(t, tc.expected, r.Authority(context.Background(), tc.facility))
		})
	}
}
