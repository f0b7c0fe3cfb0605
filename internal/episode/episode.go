// Package episode holds the pure advancement rule: given stored progress
// and fresh airing metadata, decide whether a new episode came out.
package episode

// Snapshot is the airing state of a series at one point in time.
// Episodes is the total released count when the series has finished
// (nil while unknown); NextEpisode is the upcoming episode number for
// a releasing series (nil when none is scheduled).
type Snapshot struct {
	Episodes    *int
	NextEpisode *int
	Finished    bool
}

// Latest derives the newest released episode number from the snapshot.
//
// Preference order: the total episode count if known, otherwise one
// before the next scheduled episode, otherwise 0 (nothing released or
// nothing known).
func (s Snapshot) Latest() int {
	if s.Episodes != nil {
		return *s.Episodes
	}
	if s.NextEpisode != nil {
		return *s.NextEpisode - 1
	}
	return 0
}

// Decide compares stored progress against the snapshot and returns the
// newest released episode plus whether an announcement should fire.
//
// It fires only on a strict advance. Equal progress is a no-op, which
// makes the rule idempotent across repeated sweeps, and regressions
// (upstream corrections lowering the count) never fire.
func Decide(progress int, snap Snapshot) (latest int, fire bool) {
	latest = snap.Latest()
	return latest, latest > progress
}
