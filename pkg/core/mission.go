// pkg/core/mission.go
package core

import (
	"fmt"
	"time"
)

// DateLayout is the layout used for mission dates on every external surface.
const DateLayout = "2006-01-02"

// TimeOfDay is a wall-clock time expressed as an offset from midnight.
type TimeOfDay time.Duration

// NewTimeOfDay builds a TimeOfDay from hours and minutes.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// Mission is a single flight of an aircraft.
type Mission struct {
	ID           uint
	Aircraft     string
	FlightNumber int
	Date         time.Time
	Departure    *TimeOfDay
	Arrival      *TimeOfDay
}

// FlightHours returns the block time between departure and arrival.
// Arrivals earlier than departures are treated as crossing midnight.
// Missing times yield zero.
func (m Mission) FlightHours() float64 {
	if m.Departure == nil || m.Arrival == nil {
		return 0
	}
	d := time.Duration(*m.Arrival) - time.Duration(*m.Departure)
	if d < 0 {
		d += 24 * time.Hour
	}
	return d.Hours()
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LoadoutRecord is the explicit equipment state of one position for one mission.
type LoadoutRecord struct {
	MissionID  uint
	Position   PositionID
	LauncherPN string
	MissilePN  string
	Status     LoadoutStatus
	// Version increases on every persisted write; zero means never persisted.
	Version   uint
	UpdatedAt time.Time
}

// LoadoutSource records where a resolved loadout came from.
type LoadoutSource string

const (
	SourceNone       LoadoutSource = "none"
	SourceExplicit   LoadoutSource = "explicit"
	SourceHistorical LoadoutSource = "historical"
)

// PositionLoadout is the resolved launcher/missile pair at a position for a mission.
type PositionLoadout struct {
	Position   PositionID
	RawCode    string
	LauncherPN string
	MissilePN  string
	Status     LoadoutStatus
	Source     LoadoutSource
	Version    uint
}

// FiringDeclaration records that the missile at a raw position code was declared fired.
// Fired=false is a correction that withdraws an earlier declaration.
type FiringDeclaration struct {
	MissionID    uint
	PositionCode string
	Fired        bool
	DeclaredAt   time.Time
}

// ItemKind distinguishes launcher and missile installation windows.
type ItemKind string

const (
	KindLauncher ItemKind = "launcher"
	KindMissile  ItemKind = "missile"
)

// InstallationWindow is a period during which a part was installed at an aircraft position.
type InstallationWindow struct {
	Kind         ItemKind
	Aircraft     string
	Position     PositionID
	PositionCode string
	PartNumber   string
	InstalledAt  time.Time
	RemovedAt    *time.Time
}

// Covers reports whether date falls inside the window, inclusive at both ends.
func (w InstallationWindow) Covers(date time.Time) bool {
	d := DateOnly(date)
	if DateOnly(w.InstalledAt).After(d) {
		return false
	}
	return w.RemovedAt == nil || !DateOnly(*w.RemovedAt).Before(d)
}

// Action returns the movement label shown in material-handling history.
func (w InstallationWindow) Action() string {
	if w.RemovedAt == nil {
		return "Embarkation"
	}
	return "Disembarkation"
}

// FlightData holds values recorded after a flight. They are informational only.
type FlightData struct {
	MissionID     uint
	GLoadMax      float64
	GLoadMin      float64
	AvgAltitude   int
	MaxSpeed      int
	MissileStatus string
	Notes         map[string]string
}
