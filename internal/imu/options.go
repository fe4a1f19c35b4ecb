package imu

import (
	"fmt"
	"strings"

	"go.bug.st/serial"

	"github.com/banshee-data/tofview/internal/config"
)

// DefaultFraming is eight data bits, no parity, one stop bit.
const DefaultFraming = "8N1"

// PortOptions describes the serial link to the accelerometer bridge.
// Framing uses the usual data-bits, parity, stop-bits notation: "8N1",
// "7E2", "8O1.5". Parity is one of N, E, O, M (mark) or S (space).
type PortOptions struct {
	BaudRate int
	Framing  string
}

// PortOptionsFromTuning reads the imu_baud_rate and imu_framing keys.
func PortOptionsFromTuning(tc *config.TuningConfig) PortOptions {
	return PortOptions{BaudRate: tc.GetIMUBaudRate(), Framing: tc.GetIMUFraming()}
}

var parities = map[byte]serial.Parity{
	'N': serial.NoParity,
	'E': serial.EvenParity,
	'O': serial.OddParity,
	'M': serial.MarkParity,
	'S': serial.SpaceParity,
}

var stopBits = map[string]serial.StopBits{
	"1":   serial.OneStopBit,
	"1.5": serial.OnePointFiveStopBits,
	"2":   serial.TwoStopBits,
}

// Mode converts the options into a go.bug.st/serial mode. An unset baud
// rate or framing takes the tuning defaults.
func (o PortOptions) Mode() (*serial.Mode, error) {
	baud := o.BaudRate
	if baud == 0 {
		baud = config.DefaultTuningConfig().GetIMUBaudRate()
	}
	if baud < 0 {
		return nil, fmt.Errorf("invalid baud rate %d", baud)
	}

	framing := strings.ToUpper(strings.TrimSpace(o.Framing))
	if framing == "" {
		framing = DefaultFraming
	}
	if len(framing) < 3 {
		return nil, fmt.Errorf("invalid framing %q: want e.g. 8N1", o.Framing)
	}
	dataBits := int(framing[0] - '0')
	if dataBits < 5 || dataBits > 8 {
		return nil, fmt.Errorf("invalid framing %q: data bits must be 5 to 8", o.Framing)
	}
	parity, ok := parities[framing[1]]
	if !ok {
		return nil, fmt.Errorf("invalid framing %q: parity must be N, E, O, M or S", o.Framing)
	}
	stop, ok := stopBits[framing[2:]]
	if !ok {
		return nil, fmt.Errorf("invalid framing %q: stop bits must be 1, 1.5 or 2", o.Framing)
	}

	return &serial.Mode{BaudRate: baud, DataBits: dataBits, Parity: parity, StopBits: stop}, nil
}

// String renders the options as "115200 8N1".
func (o PortOptions) String() string {
	mode, err := o.Mode()
	if err != nil {
		return fmt.Sprintf("%d %s", o.BaudRate, o.Framing)
	}
	framing := strings.ToUpper(strings.TrimSpace(o.Framing))
	if framing == "" {
		framing = DefaultFraming
	}
	return fmt.Sprintf("%d %s", mode.BaudRate, framing)
}
