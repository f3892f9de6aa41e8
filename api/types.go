// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "net"

// ProviderType tags the kind of resource a handle or request wraps.
type ProviderType int

const (
	ProviderNone ProviderType = iota
	ProviderPipeConnectWrap
	ProviderPipeServerWrap
	ProviderPipeWrap
	ProviderShutdownWrap
	ProviderTCPConnectWrap
	ProviderTCPServerWrap
	ProviderTCPWrap
	ProviderUDPSendWrap
	ProviderUDPWrap
	ProviderWriteWrap
)

func (p ProviderType) String() string {
	switch p {
	case ProviderPipeConnectWrap:
		return "PIPECONNECTWRAP"
	case ProviderPipeServerWrap:
		return "PIPESERVERWRAP"
	case ProviderPipeWrap:
		return "PIPEWRAP"
	case ProviderShutdownWrap:
		return "SHUTDOWNWRAP"
	case ProviderTCPConnectWrap:
		return "TCPCONNECTWRAP"
	case ProviderTCPServerWrap:
		return "TCPSERVERWRAP"
	case ProviderTCPWrap:
		return "TCPWRAP"
	case ProviderUDPSendWrap:
		return "UDPSENDWRAP"
	case ProviderUDPWrap:
		return "UDPWRAP"
	case ProviderWriteWrap:
		return "WRITEWRAP"
	default:
		return "NONE"
	}
}

// Handle is the surface every wrapped resource exposes.
type Handle interface {
	AsyncID() uint64
	ProviderType() ProviderType
	Close(cb func())
	Ref()
	Unref()
	HasRef() bool
}

// Address families reported in AddressInfo.
const (
	FamilyIPv4 = "IPv4"
	FamilyIPv6 = "IPv6"
)

// AddressInfo describes one end of a socket. Port and Family are set for
// TCP and UDP, Path for pipes.
type AddressInfo struct {
	Address string
	Port    int
	Family  string
	Path    string
}

// IsZero reports whether the info is unset.
func (a AddressInfo) IsZero() bool {
	return a == AddressInfo{}
}

// AddressFromNet converts a host address into AddressInfo.
func AddressFromNet(addr net.Addr) AddressInfo {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return ipInfo(a.IP, a.Port)
	case *net.UDPAddr:
		return ipInfo(a.IP, a.Port)
	case *net.UnixAddr:
		return AddressInfo{Path: a.Name}
	case nil:
		return AddressInfo{}
	default:
		return AddressInfo{Path: a.String()}
	}
}

func ipInfo(ip net.IP, port int) AddressInfo {
	info := AddressInfo{Port: port, Family: FamilyIPv6}
	if ip4 := ip.To4(); ip4 != nil {
		info.Family = FamilyIPv4
		info.Address = ip4.String()
		return info
	}
	if ip == nil {
		info.Address = "::"
		return info
	}
	info.Address = ip.String()
	return info
}
