package selection

import (
	"time"

	"feedpush/internal/model"
)

// State is the read side of the dedup store as seen by one run. Implementations
// must answer from a single consistent snapshot.
type State interface {
	WasSeen(url string) bool
	WasTitleSeen(normalizedTitle string) bool
	BoardUsageToday(board string) int
	// ActiveBoards is the number of distinct boards with a nonzero count today.
	ActiveBoards() int
}

type emptyState struct{}

func (emptyState) WasSeen(string) bool        { return false }
func (emptyState) WasTitleSeen(string) bool   { return false }
func (emptyState) BoardUsageToday(string) int { return 0 }
func (emptyState) ActiveBoards() int          { return 0 }

// EmptyState is a State with no history.
var EmptyState State = emptyState{}

// Stage is one (recency bound, seen exclusion) pair of the relaxation sequence.
type Stage struct {
	Name     string
	AgeBound bool // enforce ageHours <= lookback
	Unseen   bool // exclude urls/titles already in the store
}

// Stages is the relaxation order. Seen-state is relaxed before age; the last
// stage drops both so the quota stays stable whenever the pool allows it.
var Stages = []Stage{
	{Name: "primary", AgeBound: true, Unseen: true},
	{Name: "relax-seen", AgeBound: true},
	{Name: "relax-age", Unseen: true},
	{Name: "relax-all"},
}

// Admit reports whether c passes this stage.
func (s Stage) Admit(c model.Candidate, lookback time.Duration, st State) bool {
	if s.AgeBound && c.AgeHours > lookback.Hours() {
		return false
	}
	if s.Unseen && (st.WasSeen(c.Item.URL) || st.WasTitleSeen(c.NormalizedTitle)) {
		return false
	}
	return true
}
