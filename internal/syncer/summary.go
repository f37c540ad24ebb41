package syncer

import "github.com/taskbeads/tbd/internal/attic"

// Tally counts record-level changes in one direction.
type Tally struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Total returns the sum of all counts.
func (t Tally) Total() int { return t.New + t.Updated + t.Deleted }

func (t *Tally) add(status byte) {
	switch status {
	case 'A':
		t.New++
	case 'M':
		t.Updated++
	case 'D':
		t.Deleted++
	}
}

// Summary tallies what a sync sent to and received from the remote.
type Summary struct {
	Sent     Tally `json:"sent"`
	Received Tally `json:"received"`
}

// Result is the outcome of one sync invocation.
//
// Success is the single source of truth: callers must branch on it, never on
// the presence or absence of a summary. A rejected or failed push is never
// reported as "nothing to do".
type Result struct {
	Success  bool    `json:"success"`
	Attempts int     `json:"attempts"`
	Summary  Summary `json:"summary"`

	// Conflicts lists values the merge had to discard; they are already
	// archived in the attic.
	Conflicts []attic.Entry `json:"conflicts,omitempty"`

	// Error describes the terminal failure when Success is false.
	Error string `json:"error,omitempty"`

	// Err carries the underlying error for errors.Is checks.
	Err error `json:"-"`
}

func failure(attempts int, summary Summary, conflicts []attic.Entry, err error) *Result {
	return &Result{
		Success:   false,
		Attempts:  attempts,
		Summary:   summary,
		Conflicts: conflicts,
		Error:     err.Error(),
		Err:       err,
	}
}
