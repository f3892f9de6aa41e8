// File: udp/multicast.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package udp

import (
	"net"

	"github.com/momentics/hioload-wrap/api"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

type packetConns struct {
	v4 *ipv4.PacketConn
	v6 *ipv6.PacketConn
}

func (u *UDP) packetConns() (packetConns, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return packetConns{}, api.EBADF
	}
	return packetConns{v4: u.v4, v6: u.v6}, api.StatusOK
}

// SetTTL sets the unicast TTL or hop limit, 1 to 255.
func (u *UDP) SetTTL(ttl int) int {
	if ttl < 1 || ttl > 255 {
		return api.EINVAL
	}
	pc, st := u.packetConns()
	if st != api.StatusOK {
		return st
	}
	if pc.v4 != nil {
		return api.CodeOf(pc.v4.SetTTL(ttl))
	}
	return api.CodeOf(pc.v6.SetHopLimit(ttl))
}

// SetMulticastTTL sets the multicast TTL or hop limit, 0 to 255.
func (u *UDP) SetMulticastTTL(ttl int) int {
	if ttl < 0 || ttl > 255 {
		return api.EINVAL
	}
	pc, st := u.packetConns()
	if st != api.StatusOK {
		return st
	}
	if pc.v4 != nil {
		return api.CodeOf(pc.v4.SetMulticastTTL(ttl))
	}
	return api.CodeOf(pc.v6.SetMulticastHopLimit(ttl))
}

// SetMulticastLoopback toggles local delivery of sent multicast.
func (u *UDP) SetMulticastLoopback(on bool) int {
	pc, st := u.packetConns()
	if st != api.StatusOK {
		return st
	}
	if pc.v4 != nil {
		return api.CodeOf(pc.v4.SetMulticastLoopback(on))
	}
	return api.CodeOf(pc.v6.SetMulticastLoopback(on))
}

// SetMulticastInterface selects the outgoing interface by one of its
// addresses, or "::%name" for IPv6.
func (u *UDP) SetMulticastInterface(iface string) int {
	pc, st := u.packetConns()
	if st != api.StatusOK {
		return st
	}
	ifi, st := lookupInterface(iface)
	if st != api.StatusOK {
		return st
	}
	if pc.v4 != nil {
		return api.CodeOf(pc.v4.SetMulticastInterface(ifi))
	}
	return api.CodeOf(pc.v6.SetMulticastInterface(ifi))
}

// AddMembership joins group on iface, or the default interface when
// iface is empty.
func (u *UDP) AddMembership(group, iface string) int {
	return u.membership(group, iface, func(pc packetConns, ifi *net.Interface, g *net.UDPAddr) error {
		if pc.v4 != nil {
			return pc.v4.JoinGroup(ifi, g)
		}
		return pc.v6.JoinGroup(ifi, g)
	})
}

// DropMembership leaves group.
func (u *UDP) DropMembership(group, iface string) int {
	return u.membership(group, iface, func(pc packetConns, ifi *net.Interface, g *net.UDPAddr) error {
		if pc.v4 != nil {
			return pc.v4.LeaveGroup(ifi, g)
		}
		return pc.v6.LeaveGroup(ifi, g)
	})
}

// AddSourceSpecificMembership joins group for datagrams from source
// only.
func (u *UDP) AddSourceSpecificMembership(source, group, iface string) int {
	src := net.ParseIP(source)
	if src == nil || src.IsMulticast() {
		return api.EINVAL
	}
	return u.membership(group, iface, func(pc packetConns, ifi *net.Interface, g *net.UDPAddr) error {
		s := &net.UDPAddr{IP: src}
		if pc.v4 != nil {
			return pc.v4.JoinSourceSpecificGroup(ifi, g, s)
		}
		return pc.v6.JoinSourceSpecificGroup(ifi, g, s)
	})
}

// DropSourceSpecificMembership leaves a source-specific group.
func (u *UDP) DropSourceSpecificMembership(source, group, iface string) int {
	src := net.ParseIP(source)
	if src == nil || src.IsMulticast() {
		return api.EINVAL
	}
	return u.membership(group, iface, func(pc packetConns, ifi *net.Interface, g *net.UDPAddr) error {
		s := &net.UDPAddr{IP: src}
		if pc.v4 != nil {
			return pc.v4.LeaveSourceSpecificGroup(ifi, g, s)
		}
		return pc.v6.LeaveSourceSpecificGroup(ifi, g, s)
	})
}

func (u *UDP) membership(group, iface string, op func(packetConns, *net.Interface, *net.UDPAddr) error) int {
	ip := net.ParseIP(group)
	if ip == nil || !ip.IsMulticast() {
		return api.EINVAL
	}
	pc, st := u.packetConns()
	if st != api.StatusOK {
		return st
	}
	if (pc.v4 != nil) != (ip.To4() != nil) {
		return api.EINVAL
	}
	var ifi *net.Interface
	if iface != "" {
		if ifi, st = lookupInterface(iface); st != api.StatusOK {
			return st
		}
	}
	return api.CodeOf(op(pc, ifi, &net.UDPAddr{IP: ip}))
}

// lookupInterface resolves "addr" or "addr%zone" to an interface.
func lookupInterface(iface string) (*net.Interface, int) {
	host, zone := iface, ""
	for i := len(iface) - 1; i >= 0; i-- {
		if iface[i] == '%' {
			host, zone = iface[:i], iface[i+1:]
			break
		}
	}
	if zone != "" {
		ifi, err := net.InterfaceByName(zone)
		if err != nil {
			return nil, api.EADDRNOTAVAIL
		}
		return ifi, api.StatusOK
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, api.EINVAL
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, api.CodeOf(err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if n, ok := a.(*net.IPNet); ok && n.IP.Equal(ip) {
				return &ifaces[i], api.StatusOK
			}
		}
	}
	return nil, api.EADDRNOTAVAIL
}
