package models

// PreAirVerdict is the outcome of the premature-release gate for one torrent.
// History carries the rows examined so the blocklist step does not have to
// re-fetch them.
type PreAirVerdict struct {
	Allow   bool
	Reason  string
	History []HistoryRecord
}
