package model

import (
	"time"

	"github.com/smkwon/courtbook/services/reservation-service/internal/schedule"
)

type Reservation struct {
	Date      string
	Court     string
	BlockID   string
	User      string
	Note      string
	CreatedAt time.Time
}

// DaySchedule is the in-memory view of one date: court -> block id -> slot,
// nil meaning free. A normalized schedule always carries every court/block key
// so callers can index without existence checks.
type DaySchedule map[string]map[string]*Reservation

func NewDaySchedule() DaySchedule {
	day := make(DaySchedule, len(schedule.Courts))
	return day.Normalize()
}

func (d DaySchedule) Normalize() DaySchedule {
	for _, c := range schedule.Courts {
		if d[c] == nil {
			d[c] = make(map[string]*Reservation, len(schedule.Blocks))
		}
		for _, b := range schedule.Blocks {
			if _, ok := d[c][b.ID]; !ok {
				d[c][b.ID] = nil
			}
		}
	}
	return d
}

func (d DaySchedule) Slot(court, blockID string) *Reservation {
	return d[court][blockID]
}

func (d DaySchedule) Set(court, blockID string, r *Reservation) {
	d[court][blockID] = r
}
