// Package advertise finds the address a peer announces to the coordinator
// when no explicit address is configured.
package advertise

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// DefaultInterfaces is a default list of common interfaces that are used for
// local network traffic for Unix-like platforms.
var DefaultInterfaces = []string{"eth0", "en0"}

// AllInterfaces may be passed as the only interface name to search every
// interface on the system.
const AllInterfaces = "all"

// Address completes addr into an address other machines can reach. addr may
// be a bare host or a host:port pair. An empty or unspecified host (such as
// 0.0.0.0 or ::) is replaced with the result of FirstAddress(interfaces).
// The port, if any, is kept as is.
func Address(addr string, interfaces []string) (string, error) {
	return address(addr, func() (string, error) { return FirstAddress(interfaces) })
}

func address(addr string, first func() (string, error)) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		if !strings.Contains(err.Error(), "missing port") {
			return "", fmt.Errorf("invalid advertise address %q: %w", addr, err)
		}
		host, port = strings.Trim(addr, "[]"), ""
	}

	if ip, err := netip.ParseAddr(host); host == "" || (err == nil && ip.IsUnspecified()) {
		host, err = first()
		if err != nil {
			return "", err
		}
	}

	if port == "" {
		return host, nil
	}
	return net.JoinHostPort(host, port), nil
}

// FirstAddress returns the "best" IP address from the given interface names.
// "best" is defined as follow in decreasing order:
//
//   - IPv4 valid and not link-local unicast
//   - IPv6 valid and not link-local unicast
//   - IPv4 valid and link-local unicast
//   - IPv6 valid and link-local unicast
//
// Loopback addresses are never selected. If no interfaces are provided, or
// the only interface is AllInterfaces, every interface on the system is
// searched.
func FirstAddress(interfaces []string) (string, error) {
	return firstAddress(interfaces, getInterfaceAddresses, net.Interfaces)
}

// addressGetter matches the signature of getInterfaceAddresses to allow for
// test mocks.
type addressGetter func(name string) ([]netip.Addr, error)

// interfaceLister matches the signature of net.Interfaces() to allow for test mocks.
type interfaceLister func() ([]net.Interface, error)

func firstAddress(interfaces []string, getAddrs addressGetter, list interfaceLister) (string, error) {
	var (
		errs   *multierror.Error
		bestIP netip.Addr
	)

	if len(interfaces) == 0 || (len(interfaces) == 1 && interfaces[0] == AllInterfaces) {
		infs, err := list()
		if err != nil {
			return "", fmt.Errorf("failed to get interface list: %w", err)
		}
		interfaces = make([]string, len(infs))
		for i, v := range infs {
			interfaces[i] = v.Name
		}
	}

	for _, name := range interfaces {
		addrs, err := getAddrs(name)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("interface %q: %w", name, err))
			continue
		}

		candidate := filterBestIP(addrs)
		if !candidate.IsValid() {
			continue
		}
		if candidate.Is4() && !candidate.IsLinkLocalUnicast() {
			return candidate.String(), nil
		}
		bestIP = filterBestIP([]netip.Addr{candidate, bestIP})
	}

	if !bestIP.IsValid() {
		if err := errs.ErrorOrNil(); err != nil {
			return "", fmt.Errorf("no useable address found for interfaces %v: %w", interfaces, err)
		}
		return "", fmt.Errorf("no useable address found for interfaces %v", interfaces)
	}
	return bestIP.String(), nil
}

func getInterfaceAddresses(name string) ([]netip.Addr, error) {
	inf, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}

	addrs, err := inf.Addrs()
	if err != nil {
		return nil, err
	}

	// Interface addresses are returned as CIDRs; normalize them on netip.Addr.
	out := make([]netip.Addr, len(addrs))
	for i, a := range addrs {
		prefix, err := netip.ParsePrefix(a.String())
		if err != nil {
			return nil, fmt.Errorf("failed to parse netip.Prefix %w", err)
		}
		out[i] = prefix.Addr()
	}
	return out, nil
}

// filterBestIP returns the best address from addrs, or an invalid address if
// none are usable.
func filterBestIP(addrs []netip.Addr) netip.Addr {
	var inet4, inet6 netip.Addr

	better := func(cur, next netip.Addr) netip.Addr {
		if !cur.IsValid() || (cur.IsLinkLocalUnicast() && !next.IsLinkLocalUnicast()) {
			return next
		}
		return cur
	}

	for _, addr := range addrs {
		switch {
		case !addr.IsValid() || addr.IsLoopback():
			continue
		case addr.Is4():
			inet4 = better(inet4, addr)
		case addr.Is6():
			inet6 = better(inet6, addr)
		}
	}

	switch {
	case inet4.IsValid() && inet6.IsValid():
		if inet4.IsLinkLocalUnicast() && !inet6.IsLinkLocalUnicast() {
			return inet6
		}
		return inet4
	case inet4.IsValid():
		return inet4
	default:
		return inet6
	}
}
