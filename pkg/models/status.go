package models

import "fmt"

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailure  Status = "failure"
	StatusCanceled Status = "canceled"
)

// AllStatuses is every status in lifecycle order.
var AllStatuses = []Status{
	StatusCreated,
	StatusRunning,
	StatusDone,
	StatusFailure,
	StatusCanceled,
}

// rank orders statuses: created < running < {done, failure, canceled}.
var rank = map[Status]int{
	StatusCreated:  0,
	StatusRunning:  1,
	StatusDone:     2,
	StatusFailure:  2,
	StatusCanceled: 2,
}

// ParseStatus converts s to a Status. It returns an error for unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := rank[st]; !ok {
		return "", fmt.Errorf("unknown job status %q", s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// IsTerminal reports whether no further transition is legal from s.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailure || s == StatusCanceled
}

// CanTransitionTo reports whether moving from s to next is legal.
// done and failure are only reachable from running; canceled from created or running.
func (s Status) CanTransitionTo(next Status) bool {
	from, ok := rank[s]
	if !ok {
		return false
	}
	to, ok := rank[next]
	if !ok || s.IsTerminal() || to <= from {
		return false
	}
	if next == StatusDone || next == StatusFailure {
		return s == StatusRunning
	}
	return true
}

// SourcesFor returns the statuses from which next may be entered.
func SourcesFor(next Status) []Status {
	var from []Status
	for _, s := range AllStatuses {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

// Presentation is the display classification of a status.
type Presentation struct {
	Class string `json:"class"`
	Text  string `json:"text"`
}

var presentations = map[Status]Presentation{
	StatusCreated:  {Class: "status-created", Text: "Created"},
	StatusRunning:  {Class: "status-running", Text: "Running"},
	StatusDone:     {Class: "status-done", Text: "Done"},
	StatusFailure:  {Class: "status-failure", Text: "Failed"},
	StatusCanceled: {Class: "status-canceled", Text: "Canceled"},
}

// Presentation derives the display class and text from s.
func (s Status) Presentation() Presentation {
	if p, ok := presentations[s]; ok {
		return p
	}
	return Presentation{Class: "status-unknown", Text: "Unknown"}
}
