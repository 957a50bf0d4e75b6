package netio

import (
	"encoding/binary"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/songgao/water"
)

// TUNConfig describes how to bring up and address the TUN device backing
// a TUNChannel.
type TUNConfig struct {
	DevName    string
	LocalIP    string
	RemoteIP   string
	SubnetMask string
	MTU        int
}

// TUNChannel is an IPChannel backed by a userspace TUN device, grounded
// directly in the teacher's setupTUN/processPackets: it creates the
// device with water, configures its address and a route to the peer with
// ifconfig/route, and strips the 4-byte address-family header some BSD
// (Darwin) TUN drivers prepend to every packet. Unlike the teacher it
// hands back raw datagrams only — parsing and dispatch belong to
// internal/segment and internal/reactor.
type TUNChannel struct {
	ifce *water.Interface
	mtu  int
}

// OpenTUN creates and configures a TUN device per cfg.
func OpenTUN(cfg TUNConfig) (*TUNChannel, error) {
	waterCfg := water.Config{DeviceType: water.TUN}
	if cfg.DevName != "" {
		waterCfg.Name = cfg.DevName
	}

	ifce, err := water.New(waterCfg)
	if err != nil {
		return nil, errors.Wrap(err, "netio: create TUN device")
	}
	devName := ifce.Name()

	ifconfig := exec.Command("ifconfig", devName, cfg.LocalIP, cfg.RemoteIP,
		"netmask", cfg.SubnetMask, "mtu", fmt.Sprintf("%d", cfg.MTU), "up")
	if out, err := ifconfig.CombinedOutput(); err != nil {
		ifce.Close()
		return nil, errors.Wrapf(err, "netio: ifconfig %s: %s", devName, string(out))
	}

	localIP := net.ParseIP(cfg.LocalIP)
	mask := net.IPMask(net.ParseIP(cfg.SubnetMask).To4())
	network := localIP.Mask(mask)
	ones, _ := mask.Size()
	networkCIDR := fmt.Sprintf("%s/%d", network.String(), ones)

	route := exec.Command("route", "add", "-net", networkCIDR, cfg.RemoteIP)
	if out, err := route.CombinedOutput(); err != nil && !strings.Contains(string(out), "File exists") {
		ifce.Close()
		return nil, errors.Wrapf(err, "netio: route add %s: %s", networkCIDR, string(out))
	}

	return &TUNChannel{ifce: ifce, mtu: cfg.MTU}, nil
}

// ReadDatagram reads one IPv4 datagram, stripping the Darwin
// address-family prefix (AF_INET, big-endian uint32 == 2) when present.
func (t *TUNChannel) ReadDatagram(buf []byte) (int, error) {
	scratch := make([]byte, t.mtu+4)
	n, err := t.ifce.Read(scratch)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	data := scratch[:n]
	if n > 4 && binary.BigEndian.Uint32(data[:4]) == 2 {
		data = data[4:]
	}
	return copy(buf, data), nil
}

func (t *TUNChannel) WriteDatagram(data []byte) error {
	_, err := t.ifce.Write(data)
	return err
}

func (t *TUNChannel) Close() error {
	return t.ifce.Close()
}
