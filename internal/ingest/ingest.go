// Package ingest implements the network ingress glue (spec.md §4.G): it
// binds a reusable UDP socket, joins an IPv4 multicast group, and reads
// RTP-encapsulated Transport Stream datagrams, stripping the RTP header
// and dispatching the 7 fixed-size TS packets each datagram carries.
package ingest

import (
	"fmt"
	"log"
	"net"

	"golang.org/x/net/ipv4"
)

const (
	rtpHeaderSize  = 12
	tsPacketSize   = 188
	tsPerDatagram  = 7
	datagramSize   = rtpHeaderSize + tsPerDatagram*tsPacketSize
	rtpVersion2    = 0x80 // top 2 bits of byte 0
	rtpVersionMask = 0xc0
)

// Receiver is a bound, group-joined multicast UDP listener ready to feed
// TS packets to a Dispatch callback.
type Receiver struct {
	conn    *net.UDPConn
	pconn   *ipv4.PacketConn
	Verbose bool
}

// Join binds a UDP socket on addr:port with address reuse and joins the
// multicast group on all interfaces.
func Join(addr string, port int) (*Receiver, error) {
	group := net.ParseIP(addr)
	if group == nil {
		return nil, fmt.Errorf("ingest: invalid multicast address %q", addr)
	}

	// net.ListenMulticastUDP binds with the platform's reuse semantics for
	// the multicast group address and joins on the given interface; nil
	// selects the default interface, then JoinGroup below adds the rest.
	conn, err := net.ListenMulticastUDP("udp4", nil, &net.UDPAddr{IP: group, Port: port})
	if err != nil {
		return nil, fmt.Errorf("ingest: listen multicast udp: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	ifaces, err := net.Interfaces()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ingest: list interfaces: %w", err)
	}

	joined := false
	for _, iface := range ifaces {
		if err := pconn.JoinGroup(&iface, &net.UDPAddr{IP: group}); err == nil {
			joined = true
		}
	}
	if !joined {
		conn.Close()
		return nil, fmt.Errorf("ingest: failed to join multicast group %s on any interface", addr)
	}

	return &Receiver{conn: conn, pconn: pconn}, nil
}

// Close releases the underlying socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// Run reads datagrams until the connection is closed or an unrecoverable
// read error occurs, handing each datagram's 7 TS packets to dispatch in
// order. Short reads and malformed RTP headers are logged (verbose only)
// and skipped; Run keeps going.
func (r *Receiver) Run(dispatch func(tsPacket []byte)) error {
	buf := make([]byte, 65536)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return fmt.Errorf("ingest: read udp: %w", err)
		}

		if n != datagramSize {
			if r.Verbose {
				log.Printf("ingest: short/oversized datagram: got %d bytes, want %d", n, datagramSize)
			}
			continue
		}

		if !validRTPHeader(buf[:rtpHeaderSize]) {
			if r.Verbose {
				log.Print("ingest: invalid RTP header, skipping datagram")
			}
			continue
		}

		payload := buf[rtpHeaderSize:n]
		for i := 0; i < tsPerDatagram; i++ {
			dispatch(payload[i*tsPacketSize : (i+1)*tsPacketSize])
		}
	}
}

// validRTPHeader checks the fixed 12-byte RTP header: version 2, no
// header extension, and a sane CSRC count (spec.md §4.G — "RTP version 2,
// non-extension").
func validRTPHeader(h []byte) bool {
	if len(h) < rtpHeaderSize {
		return false
	}
	version := h[0] & rtpVersionMask
	if version != rtpVersion2 {
		return false
	}
	extension := h[0]&0x10 != 0
	if extension {
		return false
	}
	csrcCount := h[0] & 0x0f
	if csrcCount != 0 {
		return false
	}
	return true
}
