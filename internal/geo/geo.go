// Package geo derives distance and arrival time from two position samples.
// Everything here is pure; viewers get raw coordinates and speed and compute the same
// values locally.
package geo

import (
	"fmt"
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the great-circle distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// Rounding can push h a hair outside [0,1] for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceMeters is Distance in metres.
func DistanceMeters(a, b Point) float64 {
	return Distance(a, b) * 1000
}

// ETA returns the time to cover distanceMeters at speed metres per second.
// ok is false when speed is absent, not positive, or not a number; the result is then
// indeterminate and must not be shown as a duration.
func ETA(distanceMeters float64, speed *float64) (eta time.Duration, ok bool) {
	if speed == nil || math.IsNaN(*speed) || *speed <= 0 || math.IsNaN(distanceMeters) {
		return 0, false
	}
	seconds := distanceMeters / *speed
	if math.IsInf(seconds, 0) {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// FormatETA renders an ETA the way the rider dashboards show it.
// stopped selects the wording for an indeterminate ETA: a reported zero speed reads
// "Vehicle stopped", a missing speed reads "Unknown".
func FormatETA(eta time.Duration, ok bool, stopped bool) string {
	if !ok {
		if stopped {
			return "Vehicle stopped"
		}
		return "Unknown"
	}
	seconds := eta.Seconds()
	switch {
	case seconds < 60:
		return "Less than a minute"
	case seconds < 3600:
		minutes := int(math.Round(seconds / 60))
		return fmt.Sprintf("%d %s", minutes, plural(minutes, "minute"))
	}
	hours := int(seconds / 3600)
	minutes := int(math.Round(math.Mod(seconds, 3600) / 60))
	return fmt.Sprintf("%d %s %d %s", hours, plural(hours, "hour"), minutes, plural(minutes, "minute"))
}

// Describe computes distance, ETA, and the humanized ETA from a driver sample to a viewer.
func Describe(driver, viewer Point, speed *float64) Estimate {
	meters := DistanceMeters(driver, viewer)
	eta, ok := ETA(meters, speed)
	stopped := speed != nil && !math.IsNaN(*speed) && *speed <= 0
	e := Estimate{
		DistanceKm: meters / 1000,
		Label:      FormatETA(eta, ok, stopped),
	}
	if ok {
		s := eta.Seconds()
		e.ETASeconds = &s
	}
	return e
}

// Estimate is the viewer-facing derivation of one fix.
type Estimate struct {
	DistanceKm float64  `json:"distanceKm"`
	ETASeconds *float64 `json:"etaSeconds"` // nil when indeterminate
	Label      string   `json:"eta"`
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
