package imu

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/tofview/internal/motion"
)

// ErrUnrecognisedLine is returned for lines that are neither CSV nor JSON
// samples.
var ErrUnrecognisedLine = errors.New("unrecognised IMU line")

type jsonSample struct {
	AX *float64 `json:"ax"`
	AY *float64 `json:"ay"`
	AZ *float64 `json:"az"`
	T  *float64 `json:"t"`
}

// Reading is one parsed line. DeviceMillis is the device uptime stamp, or
// -1 when the line carried none.
type Reading struct {
	Sample       motion.Sample
	DeviceMillis float64
}

// ParseLine parses one accelerometer line. Accepted forms are
//
//	ax,ay,az
//	t_ms,ax,ay,az
//	{"ax":0.1,"ay":0.0,"az":9.8,"t":1234}
//
// with accelerations in m/s^2. The sample is stamped with received.
func ParseLine(line string, received time.Time) (Reading, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Reading{}, ErrUnrecognisedLine
	}
	if strings.HasPrefix(line, "{") {
		return parseJSON(line, received)
	}

	fields := strings.Split(line, ",")
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: field %d: %v", ErrUnrecognisedLine, i, err)
		}
		vals[i] = v
	}

	r := Reading{DeviceMillis: -1}
	switch len(vals) {
	case 3:
	case 4:
		r.DeviceMillis = vals[0]
		vals = vals[1:]
	default:
		return Reading{}, fmt.Errorf("%w: %d fields", ErrUnrecognisedLine, len(vals))
	}
	r.Sample = motion.Sample{X: vals[0], Y: vals[1], Z: vals[2], Timestamp: received}
	return r, nil
}

func parseJSON(line string, received time.Time) (Reading, error) {
	var js jsonSample
	if err := json.Unmarshal([]byte(line), &js); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrUnrecognisedLine, err)
	}
	if js.AX == nil || js.AY == nil || js.AZ == nil {
		return Reading{}, fmt.Errorf("%w: missing axis", ErrUnrecognisedLine)
	}
	r := Reading{
		Sample:       motion.Sample{X: *js.AX, Y: *js.AY, Z: *js.AZ, Timestamp: received},
		DeviceMillis: -1,
	}
	if js.T != nil {
		r.DeviceMillis = *js.T
	}
	return r, nil
}

// FormatLine renders a sample in the JSON line form.
func FormatLine(s motion.Sample) string {
	b, _ := json.Marshal(struct {
		AX float64 `json:"ax"`
		AY float64 `json:"ay"`
		AZ float64 `json:"az"`
	}{s.X, s.Y, s.Z})
	return string(b)
}
