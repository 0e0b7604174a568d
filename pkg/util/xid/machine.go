package xid

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const (
	// EnvMachineID 显式指定机器 ID（0-65535）
	EnvMachineID = "XTRACK_MACHINE_ID"

	// EnvPodName 由 K8s Downward API 注入
	EnvPodName = "POD_NAME"
)

// 测试注入点
var (
	lookupEnv      = os.LookupEnv
	hostname       = os.Hostname
	interfaceAddrs = net.InterfaceAddrs
)

// DefaultMachineID 依次尝试 XTRACK_MACHINE_ID、POD_NAME 哈希、主机名哈希、私有 IPv4 低 16 位。
//
// 哈希得到的 ID 可能碰撞，多副本部署应显式设置 XTRACK_MACHINE_ID。
// 碰撞只影响记录主键，运单号唯一性由缓存预留和存储唯一索引保证。
func DefaultMachineID() (uint16, error) {
	if s, ok := lookupEnv(EnvMachineID); ok && s != "" {
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("xid: %s=%q: %w", EnvMachineID, s, err)
		}
		return uint16(id), nil
	}
	if pod, ok := lookupEnv(EnvPodName); ok && pod != "" {
		return fold(pod), nil
	}

	host, hostErr := hostname()
	if hostErr == nil && host != "" {
		return fold(host), nil
	}
	if hostErr == nil {
		hostErr = errors.New("empty hostname")
	}

	ip, err := privateIPv4()
	if err != nil {
		return 0, fmt.Errorf("xid: hostname: %v: %w", hostErr, err)
	}
	b := ip.As4()
	return uint16(b[2])<<8 | uint16(b[3]), nil
}

// fold 把 xxhash64 的四个 16 位分段异或到一起。
func fold(s string) uint16 {
	h := xxhash.Sum64String(s)
	var out uint16
	for i := 0; i < 64; i += 16 {
		out ^= uint16(h >> i)
	}
	return out
}

func privateIPv4() (netip.Addr, error) {
	addrs, err := interfaceAddrs()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		if ip = ip.Unmap(); ip.Is4() && !ip.IsLoopback() && (ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
			return ip, nil
		}
	}
	return netip.Addr{}, ErrNoPrivateAddress
}
