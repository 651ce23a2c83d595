package tdsim

import (
	"encoding/binary"
	"fmt"
	"net"

	sockaddr "github.com/hashicorp/go-sockaddr"
)

// parseAddressSpace validates a CIDR block for use as a node directory's
// display labels; it never touches transport, since these addresses
// exist only for topology/statistics output. The sockaddr parse is the
// validation of record (it rejects anything that doesn't parse as an IP
// address or network, and IPv6 is rejected below; a bare IPv4 host
// address is accepted as a /32 block); the arithmetic that actually derives
// per-node addresses below works off the stdlib net.IPNet it unwraps
// to, since go-sockaddr has no per-host offset helper of its own.
func parseAddressSpace(cidr string) (*net.IPNet, error) {
	sa, err := sockaddr.NewSockAddr(cidr)
	if err != nil {
		return nil, err
	}
	ipAddr, ok := sa.(sockaddr.IPv4Addr)
	if !ok {
		return nil, fmt.Errorf("%q is not an IPv4 network", cidr)
	}
	_, ipnet, err := net.ParseCIDR(fmt.Sprintf("%s/%d", ipAddr.NetworkAddress().String(), ipAddr.Maskbits()))
	if err != nil {
		return nil, err
	}
	return ipnet, nil
}

// AddressBook hands out a stable, deterministic display address per node
// id drawn from a CIDR block. Derivation is injective for the first N
// hosts of the block.
type AddressBook struct {
	base uint32
	bits int
}

// DefaultAddressSpace is used when the configuration leaves address_space
// empty.
const DefaultAddressSpace = "10.66.0.0/24"

// NewAddressBook builds an AddressBook over cidr, falling back to
// DefaultAddressSpace when cidr is empty.
func NewAddressBook(cidr string) (*AddressBook, error) {
	if cidr == "" {
		cidr = DefaultAddressSpace
	}
	ipnet, err := parseAddressSpace(cidr)
	if err != nil {
		return nil, err
	}
	ones, _ := ipnet.Mask.Size()
	return &AddressBook{base: binary.BigEndian.Uint32(ipnet.IP.To4()), bits: ones}, nil
}

// AddressFor returns the display address for the (id+1)th host of the
// configured block, so index 0 never collides with the network address.
// It wraps around the host space rather than erroring so a misconfigured,
// too-small CIDR degrades to colliding labels instead of aborting a run.
func (b *AddressBook) AddressFor(id NodeID) string {
	hostBits := uint(32 - b.bits)
	hostSpace := uint32(1) << hostBits
	if hostSpace == 0 {
		hostSpace = 1
	}
	host := (uint32(id) + 1) % hostSpace
	addr := b.base | host

	var ip net.IP = make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, addr)
	return ip.String()
}
