//go:build !pcap
// +build !pcap

package camera

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// fileSource reads classic pcap files without libpcap. Build with
// -tags=pcap to use libpcap and BPF filtering instead.
type fileSource struct {
	f    *os.File
	r    *pcapgo.Reader
	port int
}

func openPayloadSource(cfg ReplayConfig) (payloadSource, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", cfg.Path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read PCAP header of %s: %w", cfg.Path, err)
	}
	return &fileSource{f: f, r: r, port: cfg.UDPPort}, nil
}

func (s *fileSource) Next() ([]byte, time.Time, error) {
	data, ci, err := s.r.ReadPacketData()
	if err != nil {
		return nil, time.Time{}, err
	}
	packet := gopacket.NewPacket(data, s.r.LinkType(), gopacket.Default)
	return udpPayload(packet, s.port), ci.Timestamp, nil
}

func (s *fileSource) Close() error {
	return s.f.Close()
}
