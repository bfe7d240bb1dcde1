package domain

import "time"

type OutcomeStatus string

const (
	OutcomeUpdated   OutcomeStatus = "updated"
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeFailed    OutcomeStatus = "failed"
)

// SyncOutcome is the result of processing one tracked feed. Err is set only
// for OutcomeFailed; Announcements and Checkpoint only for OutcomeUpdated.
type SyncOutcome struct {
	Status        OutcomeStatus
	Feed          TrackedFeed
	Title         string
	Announcements []Announcement
	Checkpoint    time.Time
	Err           error
}

func Updated(feed TrackedFeed, title string, announcements []Announcement, checkpoint time.Time) SyncOutcome {
	return SyncOutcome{
		Status:        OutcomeUpdated,
		Feed:          feed,
		Title:         title,
		Announcements: announcements,
		Checkpoint:    checkpoint,
	}
}

func Unchanged(feed TrackedFeed, title string) SyncOutcome {
	return SyncOutcome{Status: OutcomeUnchanged, Feed: feed, Title: title}
}

func Failed(feed TrackedFeed, err error) SyncOutcome {
	return SyncOutcome{Status: OutcomeFailed, Feed: feed, Err: err}
}

// SyncStats holds statistics about a sync or dispatch run.
type SyncStats struct {
	SyncID        string
	Feeds         int
	Updated       int
	Unchanged     int
	Failed        int
	Announcements int
	Batches       int
	Duration      time.Duration
}

// Record counts one outcome.
func (s *SyncStats) Record(o SyncOutcome) {
	s.Feeds++
	switch o.Status {
	case OutcomeUpdated:
		s.Updated++
		s.Announcements += len(o.Announcements)
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeFailed:
		s.Failed++
	}
}
