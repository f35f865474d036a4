package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetops/hardpoint/pkg/core"
)

// MissionInput is a mission as typed by a user: dates as YYYY-MM-DD and
// times as HH:MM, both optional times left empty when unknown.
type MissionInput struct {
	Aircraft     string `json:"aircraft"`
	FlightNumber int    `json:"flightNumber"`
	Date         string `json:"date"`
	Departure    string `json:"departure,omitempty"`
	Arrival      string `json:"arrival,omitempty"`
}

// Mission validates the input and converts it.
func (in MissionInput) Mission() (core.Mission, error) {
	const op = "engine.CreateMission"
	m := core.Mission{
		Aircraft:     strings.TrimSpace(in.Aircraft),
		FlightNumber: in.FlightNumber,
	}
	if m.Aircraft == "" {
		return core.Mission{}, core.Validation(op, fmt.Errorf("aircraft is required"))
	}
	if m.FlightNumber <= 0 {
		return core.Mission{}, core.Validation(op, fmt.Errorf("flight number must be positive, got %d", in.FlightNumber))
	}
	if strings.TrimSpace(in.Date) == "" {
		return core.Mission{}, core.Validation(op, fmt.Errorf("mission date is required"))
	}
	date, err := time.Parse(core.DateLayout, strings.TrimSpace(in.Date))
	if err != nil {
		return core.Mission{}, core.Validation(op, fmt.Errorf("invalid mission date %q, expected %s", in.Date, core.DateLayout))
	}
	m.Date = date

	if m.Departure, err = optionalTime(in.Departure); err != nil {
		return core.Mission{}, core.Validation(op, err)
	}
	if m.Arrival, err = optionalTime(in.Arrival); err != nil {
		return core.Mission{}, core.Validation(op, err)
	}
	return m, nil
}

func optionalTime(s string) (*core.TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := core.ParseTimeOfDay(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
