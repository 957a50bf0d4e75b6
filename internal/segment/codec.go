package segment

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// ErrMalformed is returned by Parse when an inbound buffer does not decode
// into an IPv4 datagram carrying a well-formed TCP segment: declared length
// fields disagree with the buffer, or the protocol isn't 6 (TCP). Per
// spec §7 tier 2, callers drop the datagram silently rather than propagate
// this further.
var ErrMalformed = errors.New("segment: malformed datagram")

// TCPProtocolNumber is the IPv4 protocol number this daemon speaks.
const TCPProtocolNumber = 6

// window is the fixed advertised window this daemon always sends (spec §4.1).
const window = 8192

// Flags mirrors the subset of TCP control bits the state machine cares
// about (spec §3: transitions are expressed in terms of SYN|ACK|FIN).
type Flags uint8

const (
	FlagFIN Flags = 1 << 0
	FlagSYN Flags = 1 << 1
	FlagRST Flags = 1 << 2
	FlagPSH Flags = 1 << 3
	FlagACK Flags = 1 << 4
	FlagURG Flags = 1 << 5
)

// Masked returns f restricted to the SYN|ACK|FIN bits, as the transition
// table in spec §4.3 compares against.
func (f Flags) Masked() Flags {
	return f & (FlagSYN | FlagACK | FlagFIN)
}

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Segment is a decoded IPv4 datagram carrying a TCP segment: the two
// endpoints, the flags/seq/ack, TTL, and payload. It is the unit the
// reactor's IP pump forwards and the unit handle.Connection queues as
// received data.
type Segment struct {
	Src, Dst Endpoint
	Seq, Ack uint32
	Flags    Flags
	TTL      uint8
	Payload  []byte
}

// Build serializes an IPv4+TCP segment the way this daemon always sends
// them: IHL=5, no IP options, DataOffset=5, no TCP options, window=8192,
// urgent=0, checksums computed over the canonical pseudo-header. ipID
// seeds the IPv4 identification field.
func Build(src, dst Endpoint, seq, ack uint32, flags Flags, ttl uint8, ipID uint16, payload []byte) ([]byte, error) {
	ipLayer := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		Id:       ipID,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    ipOrZero(src.IP),
		DstIP:    ipOrZero(dst.IP),
	}
	tcpLayer := &layers.TCP{
		SrcPort:    layers.TCPPort(src.Port),
		DstPort:    layers.TCPPort(dst.Port),
		Seq:        seq,
		Ack:        ack,
		DataOffset: 5,
		FIN:        flags.Has(FlagFIN),
		SYN:        flags.Has(FlagSYN),
		RST:        flags.Has(FlagRST),
		PSH:        flags.Has(FlagPSH),
		ACK:        flags.Has(FlagACK),
		URG:        flags.Has(FlagURG),
		Window:     window,
		Urgent:     0,
	}
	if err := tcpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, errors.Wrap(err, "segment: set checksum network layer")
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ipLayer, tcpLayer, gopacket.Payload(payload)); err != nil {
		return nil, errors.Wrap(err, "segment: serialize")
	}
	return buf.Bytes(), nil
}

// Parse decodes a raw IPv4 datagram into a Segment. It fails with
// ErrMalformed for anything that isn't a well-formed IPv4/TCP datagram —
// short buffers, a non-IPv4 version, or a non-TCP protocol.
func Parse(data []byte) (Segment, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.NoCopy)
	if err := pkt.ErrorLayer(); err != nil {
		return Segment{}, errors.Wrap(ErrMalformed, err.Error())
	}

	ipLayer, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok || ipLayer == nil {
		return Segment{}, ErrMalformed
	}
	if ipLayer.Protocol != layers.IPProtocolTCP {
		return Segment{}, ErrMalformed
	}

	tcpLayer, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok || tcpLayer == nil {
		return Segment{}, ErrMalformed
	}

	var flags Flags
	if tcpLayer.FIN {
		flags |= FlagFIN
	}
	if tcpLayer.SYN {
		flags |= FlagSYN
	}
	if tcpLayer.RST {
		flags |= FlagRST
	}
	if tcpLayer.PSH {
		flags |= FlagPSH
	}
	if tcpLayer.ACK {
		flags |= FlagACK
	}
	if tcpLayer.URG {
		flags |= FlagURG
	}

	payload := append([]byte(nil), tcpLayer.Payload...)

	return Segment{
		Src:     NewEndpoint(ipLayer.SrcIP, uint16(tcpLayer.SrcPort)),
		Dst:     NewEndpoint(ipLayer.DstIP, uint16(tcpLayer.DstPort)),
		Seq:     tcpLayer.Seq,
		Ack:     tcpLayer.Ack,
		Flags:   flags,
		TTL:     ipLayer.TTL,
		Payload: payload,
	}, nil
}

func ipOrZero(ip []byte) []byte {
	if ip == nil {
		return []byte{0, 0, 0, 0}
	}
	return ip
}
