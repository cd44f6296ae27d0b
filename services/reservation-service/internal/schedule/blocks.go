package schedule

import "time"

// The company runs two courts with three fixed blocks per day: two lunch
// halves and one after-work hour. Changing these means migrating the
// spreadsheet rows that reference the block ids.

type Block struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Start string `json:"start"` // wall clock, "15:04"
	End   string `json:"end"`
}

const (
	CourtA = "A"
	CourtB = "B"
)

var Courts = []string{CourtA, CourtB}

var Blocks = []Block{
	{ID: "LUNCHA", Label: "Lunch A", Start: "11:30", End: "12:15"},
	{ID: "LUNCHB", Label: "Lunch B", Start: "12:15", End: "13:00"},
	{ID: "AFTER", Label: "After work", Start: "17:00", End: "18:00"},
}

func BlockByID(id string) (Block, bool) {
	for _, b := range Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}

func ValidCourt(court string) bool {
	for _, c := range Courts {
		if c == court {
			return true
		}
	}
	return false
}

// OtherCourt returns the opposite court, used to reject a user double-booking
// the same block on both courts.
func OtherCourt(court string) string {
	if court == CourtA {
		return CourtB
	}
	return CourtA
}

const DateLayout = "2006-01-02"

func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
