// Package iprange enumerates IPv4 address ranges given as textual endpoints.
package iprange

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// MaxAddresses caps the size of a single expansion.
const MaxAddresses = 1 << 16

var (
	ErrInvalidAddress = errors.New("iprange: invalid IPv4 address")
	ErrReversedRange  = errors.New("iprange: range start is after range end")
	ErrRangeTooLarge  = errors.New("iprange: range exceeds maximum size")
)

// Expand returns every IPv4 address between from and to inclusive, in
// ascending order, formatted as dotted quads.
func Expand(from, to string) ([]string, error) {
	start, err := parse(from)
	if err != nil {
		return nil, err
	}
	end, err := parse(to)
	if err != nil {
		return nil, err
	}
	if Compare(start, end) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrReversedRange, start, end)
	}
	if size := span(start, end); size > MaxAddresses {
		return nil, fmt.Errorf("%w: %d addresses", ErrRangeTooLarge, size)
	}

	out := make([]string, 0, span(start, end))
	for ip := start; ; ip = Next(ip) {
		out = append(out, ip.String())
		if Compare(ip, end) == 0 {
			break
		}
	}
	return out, nil
}

func parse(s string) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return ip.To4(), nil
}

func span(start, end net.IP) uint64 {
	return uint64(toUint32(end)) - uint64(toUint32(start)) + 1
}

func toUint32(ip net.IP) uint32 {
	ip = ip.To4()
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func clone(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	dup := make(net.IP, len(ip))
	copy(dup, ip)
	return dup
}

// Next returns the address following ip, carrying across octets.
func Next(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	res := clone(ip)
	for i := len(res) - 1; i >= 0; i-- {
		res[i]++
		if res[i] != 0 {
			break
		}
	}
	return res
}

// Compare orders two addresses. nil sorts first; non-IPv4 addresses fall
// back to string comparison.
func Compare(a, b net.IP) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	aa := a.To4()
	bb := b.To4()
	if aa == nil || bb == nil {
		return strings.Compare(a.String(), b.String())
	}
	for i := range aa {
		if aa[i] < bb[i] {
			return -1
		}
		if aa[i] > bb[i] {
			return 1
		}
	}
	return 0
}
