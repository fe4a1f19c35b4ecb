//go:build pcap
// +build pcap

package camera

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// libpcapSource reads captures through libpcap with a BPF port filter.
type libpcapSource struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
	port   int
}

func openPayloadSource(cfg ReplayConfig) (payloadSource, error) {
	handle, err := pcap.OpenOffline(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", cfg.Path, err)
	}
	if cfg.UDPPort != 0 {
		filter := fmt.Sprintf("udp port %d", cfg.UDPPort)
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to set BPF filter '%s': %w", filter, err)
		}
	}
	return &libpcapSource{
		handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
		port:   cfg.UDPPort,
	}, nil
}

func (s *libpcapSource) Next() ([]byte, time.Time, error) {
	packet, err := s.source.NextPacket()
	if err == io.EOF {
		return nil, time.Time{}, io.EOF
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return udpPayload(packet, s.port), packet.Metadata().Timestamp, nil
}

func (s *libpcapSource) Close() error {
	s.handle.Close()
	return nil
}
