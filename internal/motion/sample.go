package motion

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// StandardGravity is the nominal gravity magnitude in m/s^2.
const StandardGravity = 9.81

// Sample is one 3-axis accelerometer reading in m/s^2.
type Sample struct {
	X, Y, Z   float64
	Timestamp time.Time
}

// Vector returns the sample as a 3-element slice.
func (s Sample) Vector() []float64 {
	return []float64{s.X, s.Y, s.Z}
}

// Magnitude returns the Euclidean norm of the acceleration vector.
func (s Sample) Magnitude() float64 {
	return floats.Norm(s.Vector(), 2)
}

// Deviation returns how far the magnitude is from gravity.
func (s Sample) Deviation(gravity float64) float64 {
	return math.Abs(s.Magnitude() - gravity)
}
