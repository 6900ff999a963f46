package scheduler

import (
	"context"
	"math/rand"
	"sort"
)

// Gap is a free interval within one day's placements: Start is the relative
// start of the preceding lesson (not its end — the source computes gaps
// this way and the cost function's penalty table assumes it; see
// DESIGN.md), Length is the distance to the next lesson's start.
type Gap struct {
	Start  int
	Length int
}

// Timetable holds, for each day of a run, an ordered list of placed
// Candidates, plus a residual pool of candidates the run has not placed.
// Cost is cached and only recomputed when Modified is set (spec §4.3).
type Timetable struct {
	Days       int
	TimePerDay int

	Placed   [][]*Candidate
	Residual []*Candidate

	cost     float64
	Modified bool
}

// NewTimetable builds an empty Timetable with the given day count and unit
// day length, with every candidate initially unplaced.
func NewTimetable(days, timePerDay int, candidates []*Candidate) *Timetable {
	placed := make([][]*Candidate, days)
	for i := range placed {
		placed[i] = nil
	}
	residual := make([]*Candidate, len(candidates))
	copy(residual, candidates)
	return &Timetable{
		Days:       days,
		TimePerDay: timePerDay,
		Placed:     placed,
		Residual:   residual,
		Modified:   true,
	}
}

// SeedParams configures the random greedy-seeding constructor of spec §4.3.
type SeedParams struct {
	RandomLessonSkipProbability float64
	FailureThreshold            int // consecutive placement failures before abandoning the seed
}

// SeedRandom performs the fast greedy-randomized seed placement described in
// spec §4.3: for each candidate in shuffled order, pick a random day, then
// walk that day's teacher gaps in random order looking for room.
func (t *Timetable) SeedRandom(ctx context.Context, rng *rand.Rand, params SeedParams) error {
	order := make([]*Candidate, len(t.Residual))
	copy(order, t.Residual)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	failureThreshold := params.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = 10
	}

	placedIDs := make(map[string]bool)
	consecutiveFailures := 0

	for _, candidate := range order {
		teacher, err := candidate.Teacher(ctx)
		if err != nil {
			return err
		}
		var teacherID string
		if teacher != nil {
			teacherID = teacher.ID
		}

		day := rng.Intn(t.Days)
		gaps := t.GetGaps(teacherID, day, true)
		gapOrder := rng.Perm(len(gaps))

		placed := false
		for _, gi := range gapOrder {
			gap := gaps[gi]
			if rng.Float64() < params.RandomLessonSkipProbability {
				continue
			}
			duration := candidate.DurationUnits
			if gap.Length > duration+1 {
				var start int
				if float64(gap.Length) < 1.5*float64(duration) {
					start = gap.Start + 1
				} else {
					span := gap.Length - 2 - duration
					if span <= 0 {
						start = gap.Start
					} else {
						start = gap.Start + rng.Intn(span+1)
					}
				}
				if err := candidate.SetRelativeStart(t.TimePerDay, start); err != nil {
					continue
				}
				t.Placed[day] = append(t.Placed[day], candidate)
				placedIDs[candidate.ID] = true
				placed = true
				break
			}
		}

		if !placed {
			consecutiveFailures++
			if consecutiveFailures >= failureThreshold {
				break
			}
		} else {
			consecutiveFailures = 0
		}
	}

	if len(placedIDs) > 0 {
		remaining := t.Residual[:0:0]
		for _, c := range t.Residual {
			if !placedIDs[c.ID] {
				remaining = append(remaining, c)
			}
		}
		t.Residual = remaining
	}
	t.Modified = true
	return nil
}

// GetGaps returns the free intervals of a day, optionally including the
// boundary gaps before the first and after the last placement.
//
// userID is accepted but deliberately unused: the source computes gaps from
// the Timetable's own placed lessons for the day, not from a per-user
// projection, so every user sees the same day-level gaps regardless of
// whether they participate in any of that day's lessons. This spec
// preserves that literal behavior (spec §4.3 "Gap computation" note).
func (t *Timetable) GetGaps(userID string, day int, boundaries bool) []Gap {
	lessons := make([]*Candidate, len(t.Placed[day]))
	copy(lessons, t.Placed[day])
	sort.Slice(lessons, func(i, j int) bool { return Before(lessons[i], lessons[j]) })

	if len(lessons) == 0 {
		if boundaries {
			return []Gap{{Start: 0, Length: t.TimePerDay}}
		}
		return nil
	}

	var gaps []Gap
	if boundaries {
		gaps = append(gaps, Gap{Start: 0, Length: lessons[0].RelativeStart()})
	}
	for i := 1; i < len(lessons); i++ {
		prev := lessons[i-1].RelativeStart()
		curr := lessons[i].RelativeStart()
		gaps = append(gaps, Gap{Start: prev, Length: curr - prev})
	}
	if boundaries {
		last := lessons[len(lessons)-1].RelativeStart()
		gaps = append(gaps, Gap{Start: last, Length: t.TimePerDay - last})
	}
	return gaps
}

// Crossover produces one child Timetable from two parents: for each day,
// both parents' placements are pooled, shuffled, and the first half of the
// pool is walked, accepting each candidate whose id is not yet present in
// the child's day. Accepted candidates are deep-copied so the child owns
// independent Candidate instances (spec §4.3 "Crossover").
//
// Residual and caches are inherited from the first parent: both parents
// derive from the same run's candidate pool, so the source treats the
// residual list as owned by the Population rather than recomputed per
// child — this spec preserves that (see DESIGN.md Open Questions).
func Crossover(rng *rand.Rand, a, b *Timetable) *Timetable {
	child := &Timetable{
		Days:       a.Days,
		TimePerDay: a.TimePerDay,
		Placed:     make([][]*Candidate, a.Days),
		Residual:   cloneCandidates(a.Residual),
		Modified:   true,
	}

	for d := 0; d < a.Days; d++ {
		pool := make([]*Candidate, 0, len(a.Placed[d])+len(b.Placed[d]))
		pool = append(pool, a.Placed[d]...)
		pool = append(pool, b.Placed[d]...)
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

		k := len(pool) / 2
		seen := make(map[string]bool, k)
		var day []*Candidate
		for i := 0; i < k; i++ {
			c := pool[i]
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			day = append(day, c.Copy())
		}
		child.Placed[d] = day
	}

	return child
}

func cloneCandidates(in []*Candidate) []*Candidate {
	out := make([]*Candidate, len(in))
	for i, c := range in {
		out[i] = c.Copy()
	}
	return out
}

// MutationParams configures Mutate (spec §4.3 "Mutation").
type MutationParams struct {
	LessonsPerDay int // default 3
}

// Mutate applies LessonsPerDay rounds of a randomly chosen operator
// (reposition / evict / inject) to every day, in place.
func (t *Timetable) Mutate(rng *rand.Rand, params MutationParams) {
	rounds := params.LessonsPerDay
	if rounds <= 0 {
		rounds = 3
	}

	for d := 0; d < t.Days; d++ {
		for i := 0; i < rounds; i++ {
			switch rng.Intn(3) {
			case 0:
				t.mutateReposition(rng, d)
			case 1:
				t.mutateEvict(rng, d)
			case 2:
				t.mutateInject(rng, d)
			}
		}
	}
	t.Modified = true
}

func (t *Timetable) mutateReposition(rng *rand.Rand, day int) {
	placements := t.Placed[day]
	if len(placements) == 0 {
		return
	}
	c := placements[rng.Intn(len(placements))]
	max := t.TimePerDay - c.DurationUnits
	if max < 0 {
		return
	}
	_ = c.SetRelativeStart(t.TimePerDay, rng.Intn(max+1))
}

func (t *Timetable) mutateEvict(rng *rand.Rand, day int) {
	placements := t.Placed[day]
	if len(placements) == 0 {
		return
	}
	idx := rng.Intn(len(placements))
	c := placements[idx]
	t.Placed[day] = removeAt(placements, idx)

	pos := 0
	if len(t.Residual) > 0 {
		pos = rng.Intn(len(t.Residual) + 1)
	}
	t.Residual = insertAt(t.Residual, pos, c)
}

func (t *Timetable) mutateInject(rng *rand.Rand, day int) {
	if len(t.Residual) == 0 {
		return
	}
	idx := rng.Intn(len(t.Residual))
	c := t.Residual[idx]
	t.Residual = removeAt(t.Residual, idx)

	max := t.TimePerDay - c.DurationUnits
	if max < 0 {
		max = 0
	}
	_ = c.SetRelativeStart(t.TimePerDay, rng.Intn(max+1))
	t.Placed[day] = append(t.Placed[day], c)
}

func removeAt(s []*Candidate, idx int) []*Candidate {
	out := make([]*Candidate, 0, len(s)-1)
	out = append(out, s[:idx]...)
	out = append(out, s[idx+1:]...)
	return out
}

func insertAt(s []*Candidate, idx int, c *Candidate) []*Candidate {
	out := make([]*Candidate, 0, len(s)+1)
	out = append(out, s[:idx]...)
	out = append(out, c)
	out = append(out, s[idx:]...)
	return out
}
