package advertise

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func mockAddressGetter(data map[string][]string) addressGetter {
	return func(name string) ([]netip.Addr, error) {
		addrs, found := data[name]
		if !found {
			return nil, errors.New("interface not found")
		}

		var out []netip.Addr
		for _, a := range addrs {
			prefix, _ := netip.ParsePrefix(a)
			out = append(out, prefix.Addr())
		}
		return out, nil
	}
}

func mockInterfaceLister() ([]net.Interface, error) {
	return []net.Interface{{Name: "eth0"}, {Name: "eth1"}, {Name: "eth2"}, {Name: "lo"}}, nil
}

func TestFirstAddress(t *testing.T) {
	tt := []struct {
		name          string
		interfaceData map[string][]string
		interfaces    []string
		expect        string
		expectError   string
	}{
		{
			name:          "one interface with IPv4",
			interfaceData: map[string][]string{"eth0": {"::2/128"}, "eth1": {"192.168.1.1/24"}},
			interfaces:    []string{"eth0", "eth1"},
			expect:        "192.168.1.1",
		},
		{
			name:          "only IPv6",
			interfaceData: map[string][]string{"eth0": {"::2/128"}, "eth1": {"::3/128"}},
			interfaces:    []string{"eth0", "eth1"},
			expect:        "::3",
		},
		{
			name:          "invalid interface",
			interfaceData: map[string][]string{"eth0": {"192.168.1.1/24"}},
			interfaces:    []string{"invalid"},
			expectError:   "no useable address found for interfaces [invalid]: 1 error occurred:\n\t* interface \"invalid\": interface not found\n\n",
		},
		{
			name:          "invalid interface skipped",
			interfaceData: map[string][]string{"eth0": {"::2/128"}, "eth1": {"192.168.1.1/24"}},
			interfaces:    []string{"invalid", "eth0", "eth1"},
			expect:        "192.168.1.1",
		},
		{
			name:          "no addresses",
			interfaceData: map[string][]string{"eth0": {}, "eth1": {}},
			interfaces:    []string{"eth0", "eth1"},
			expectError:   "no useable address found for interfaces [eth0 eth1]",
		},
		{
			name:          "loopback ignored",
			interfaceData: map[string][]string{"eth0": {"127.0.0.1/8", "::1/128", "192.168.1.1/24"}},
			interfaces:    []string{"eth0"},
			expect:        "192.168.1.1",
		},
		{
			name:          "link-local avoided (IPv4)",
			interfaceData: map[string][]string{"eth0": {"169.254.0.1/16", "192.168.1.1/24"}},
			interfaces:    []string{"eth0"},
			expect:        "192.168.1.1",
		},
		{
			name:          "link-local avoided (IPv6)",
			interfaceData: map[string][]string{"eth0": {"fe80::1/64", "::2/128"}},
			interfaces:    []string{"eth0"},
			expect:        "::2",
		},
		{
			name:          "link-local IPv4 loses to IPv6",
			interfaceData: map[string][]string{"eth0": {"169.254.0.1/16", "::2/128"}},
			interfaces:    []string{"eth0"},
			expect:        "::2",
		},
		{
			name:          "link-local as last resort",
			interfaceData: map[string][]string{"eth0": {"169.254.0.1/16"}},
			interfaces:    []string{"eth0"},
			expect:        "169.254.0.1",
		},
		{
			name: "all interfaces",
			interfaceData: map[string][]string{
				"eth0": {"169.254.0.1/16"},
				"eth1": {"10.0.0.2/24"},
				"eth2": {"192.168.1.1/24"},
				"lo":   {"127.0.0.1/8"},
			},
			interfaces: []string{AllInterfaces},
			expect:     "10.0.0.2",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := firstAddress(tc.interfaces, mockAddressGetter(tc.interfaceData), mockInterfaceLister)
			if tc.expectError != "" {
				require.EqualError(t, err, tc.expectError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, actual)
		})
	}
}

func TestAddress(t *testing.T) {
	first := func() (string, error) { return "10.0.0.2", nil }

	tt := []struct {
		in, expect string
	}{
		{"", "10.0.0.2"},
		{":7000", "10.0.0.2:7000"},
		{"0.0.0.0:7000", "10.0.0.2:7000"},
		{"[::]:7000", "10.0.0.2:7000"},
		{"0.0.0.0", "10.0.0.2"},
		{"example.com", "example.com"},
		{"example.com:7000", "example.com:7000"},
		{"127.0.0.1:50001", "127.0.0.1:50001"},
		{"[fe80::1]:7000", "[fe80::1]:7000"},
	}

	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			actual, err := address(tc.in, first)
			require.NoError(t, err)
			require.Equal(t, tc.expect, actual)
		})
	}

	t.Run("lookup failure", func(t *testing.T) {
		_, err := address(":7000", func() (string, error) { return "", errors.New("no interfaces") })
		require.EqualError(t, err, "no interfaces")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := address("a:b:c", first)
		require.Error(t, err)
	})
}
