package presence

import (
	"strings"
	"time"

	"unykorn/pkg/domain"
	dErrors "unykorn/pkg/domain-errors"
)

// Method is how the scanner observed the beacon.
type Method string

const (
	MethodQR  Method = "QR"
	MethodNFC Method = "NFC"
	MethodGPS Method = "GPS"
)

// ParseMethod accepts a method tag in any case.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodQR, MethodNFC, MethodGPS:
		return m, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown check-in method %q", s)
}

// Coordinate is a WGS84 position in micro-degrees (degrees * 1e6).
type Coordinate struct {
	Lat int64
	Lon int64
}

const (
	maxLatMicro = 90_000_000
	maxLonMicro = 180_000_000
)

// Validate rejects positions outside the valid latitude and longitude ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -maxLatMicro || c.Lat > maxLatMicro {
		return dErrors.Newf(dErrors.CodeInvalidInput, "latitude %d out of range", c.Lat)
	}
	if c.Lon < -maxLonMicro || c.Lon > maxLonMicro {
		return dErrors.Newf(dErrors.CodeInvalidInput, "longitude %d out of range", c.Lon)
	}
	return nil
}

// BeaconSpec describes a beacon to register. A zero Reward uses the registry
// default.
type BeaconSpec struct {
	Label        string
	Position     Coordinate
	RadiusMeters uint32
	Owner        domain.Address
	Reward       domain.Amount
}

type Beacon struct {
	ID           domain.BeaconID
	Label        string
	Position     Coordinate
	RadiusMeters uint32
	Owner        domain.Address
	Reward       domain.Amount
	Active       bool
	CreatedAt    time.Time
}

// CheckIn is one accepted visit. At most one exists per user, beacon and day.
type CheckIn struct {
	User           domain.Address
	BeaconID       domain.BeaconID
	Day            domain.Day
	Method         Method
	Position       Coordinate
	DistanceMeters float64
	Reward         domain.Amount
	At             time.Time
}

// CheckInKey identifies the daily check-in slot.
type CheckInKey struct {
	User     domain.Address
	BeaconID domain.BeaconID
	Day      domain.Day
}

// Stats is a user's running presence record.
type Stats struct {
	User           domain.Address
	CurrentStreak  uint32
	LongestStreak  uint32
	LastCheckInDay domain.Day
	TotalCheckIns  uint64
}

// record applies a check-in on day. Consecutive days extend the streak, a
// second check-in on the same day keeps it, any gap restarts it at one.
func (s Stats) record(day domain.Day) Stats {
	switch {
	case s.TotalCheckIns > 0 && s.LastCheckInDay == day:
	case s.TotalCheckIns > 0 && s.LastCheckInDay == day-1:
		s.CurrentStreak++
	default:
		s.CurrentStreak = 1
	}
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.LastCheckInDay = day
	s.TotalCheckIns++
	return s
}
