package models

import (
	"fmt"
	"strings"
)

// TimeSlot is a dated visiting window for an exhibition or a show performance
type TimeSlot struct {
	ID             string `json:"id"`
	Target         Target `json:"target"`
	Title          string `json:"title"`
	SlotDate       string `json:"slotDate"`  // YYYY-MM-DD
	StartTime      string `json:"startTime"` // HH:MM:SS
	EndTime        string `json:"endTime"`
	Capacity       int    `json:"capacity"`
	AvailableSeats int    `json:"availableSeats"`
}

// Label renders the window as "10:00 - 11:00"
func (s *TimeSlot) Label() string {
	return fmt.Sprintf("%s - %s", trimSeconds(s.StartTime), trimSeconds(s.EndTime))
}

// BelongsTo reports whether the slot is for the given target
func (s *TimeSlot) BelongsTo(t Target) bool {
	return s.Target.Kind == t.Kind && s.Target.ID == t.ID
}

func trimSeconds(t string) string {
	if parts := strings.Split(t, ":"); len(parts) == 3 {
		return parts[0] + ":" + parts[1]
	}
	return t
}

// TicketPrice is the server-side price of one ticket type for a target
type TicketPrice struct {
	Target     Target `json:"target"`
	TicketType string `json:"ticketType"`
	PricePaise int64  `json:"pricePaise"`
}
