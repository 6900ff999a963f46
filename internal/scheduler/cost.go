package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

const evenAllocationConstK = 1000.0

// CostInputs carries the run-level context the cost function needs beyond a
// Timetable's own placements: each group's prior allocation and recency, the
// run's first day, and the resolved school-year start (spec §4.3 "Cost
// function"). SecondsPerUnit converts placed duration units back to seconds
// for the even-allocation term. DesiredLessonTime is the configured target
// for the desired-volume term (spec §4.6 Driver configuration).
type CostInputs struct {
	YearStart         time.Time
	FirstDay          time.Time
	GroupStats        map[string]models.GroupStats // group id -> prior allocation, read once per run
	SecondsPerUnit    int
	DesiredLessonTime int
}

// occupancy is the set of time units a user occupies on one day.
type occupancy map[int]bool

// Cost evaluates the composite, additive cost of spec §4.3. If Modified is
// false and force is false, the cached value is returned unchanged.
func (t *Timetable) Cost(ctx context.Context, inputs CostInputs, force bool) (float64, error) {
	if !t.Modified && !force {
		return t.cost, nil
	}

	var clashCost, workloadCost, gapsCost, earlyFinishCost float64

	runAllocatedSeconds := make(map[string]int) // seconds placed by this run, per group
	studentUnits := 0
	studentCount := make(map[string]bool)
	touchedGroups := make(map[string]bool)

	for d := 0; d < t.Days; d++ {
		dayOccupancy := make(map[string]occupancy) // user id -> occupied units

		for _, c := range t.Placed[d] {
			touchedGroups[c.GroupID] = true
			runAllocatedSeconds[c.GroupID] += c.DurationUnits * inputs.SecondsPerUnit

			teacher, err := c.Teacher(ctx)
			if err != nil {
				return 0, err
			}
			participants, err := c.Participants(ctx)
			if err != nil {
				return 0, err
			}

			for _, p := range participants {
				if p.UserType == models.UserTypeStudent {
					studentCount[p.ID] = true
				}
				occ, ok := dayOccupancy[p.ID]
				if !ok {
					occ = make(occupancy)
					dayOccupancy[p.ID] = occ
				}
				isTeacherUser := teacher != nil && p.ID == teacher.ID
				for slot := c.RelativeStart(); slot < c.RelativeStart()+c.DurationUnits; slot++ {
					if occ[slot] {
						if isTeacherUser {
							clashCost += 100
						} else {
							clashCost += 10
						}
						continue
					}
					occ[slot] = true
					if p.UserType == models.UserTypeStudent {
						studentUnits++
					}
				}
			}
		}

		for _, occ := range dayOccupancy {
			workloadCost += math.Max(0, math.Exp(float64(len(occ))/23)-23)

			maxSlot := -1
			for slot := range occ {
				if slot > maxSlot {
					maxSlot = slot
				}
			}
			if maxSlot >= 0 {
				earlyFinishCost += math.Max(0, float64(maxSlot-48)/10)
			}
		}

		// Gaps: the source's get_gaps ignores the user argument (see
		// GetGaps), so every user present that day accrues the same
		// day-level gap cost — preserved literally per spec §4.3.
		gaps := t.GetGaps("", d, true)
		dayGapCost := 0
		for _, g := range gaps {
			dayGapCost += gapCost(g.Length)
		}
		gapsCost += float64(dayGapCost * len(dayOccupancy))
	}

	evenAllocation := evenAllocationCost(inputs, runAllocatedSeconds)
	desiredVolume := desiredVolumeCost(studentUnits, len(studentCount), inputs.DesiredLessonTime)
	variety := varietyCost(inputs, touchedGroups)

	total := clashCost + evenAllocation + desiredVolume + variety + workloadCost + gapsCost + earlyFinishCost
	total = math.Max(0, total)

	t.cost = total
	t.Modified = false
	return total, nil
}

// gapCost maps a gap length to its penalty. Length 3 deliberately matches
// the "<= 3" branch before a narrower length-4 branch could also apply —
// the source's first-matching-branch behavior, preserved per spec §4.3's
// note on gap_cost(3).
func gapCost(length int) int {
	switch {
	case length == 0:
		return 10
	case length == 1:
		return 0
	case length <= 3:
		return 5
	case length <= 4:
		return 1
	default:
		return 0
	}
}

// evenAllocationCost penalizes groups whose allocation (prior seconds plus
// this run's placements) deviates from the mean allocation across groups,
// scaled by a logistic ramp over how far the run is into the school year.
// desired_g is taken as the mean allocated_g across groups — spec.md names
// a "desired_g" without defining it beyond the label; this is the
// documented interpretation (see DESIGN.md Open Questions).
func evenAllocationCost(inputs CostInputs, runAllocatedSeconds map[string]int) float64 {
	if len(inputs.GroupStats) == 0 {
		return 0
	}

	allocated := make(map[string]float64, len(inputs.GroupStats))
	var total float64
	for g, stats := range inputs.GroupStats {
		allocated[g] = float64(stats.SecondsAllocated + runAllocatedSeconds[g])
		total += allocated[g]
	}
	mean := total / float64(len(allocated))
	if mean == 0 {
		return 0
	}

	d := inputs.FirstDay.Sub(inputs.YearStart).Hours() / 24
	sigma := 1 / (1 + math.Exp(-(-8 + 0.4*d)))

	var deviation float64
	for _, a := range allocated {
		deviation += math.Abs(a-mean) / mean
	}
	return 100 * sigma * deviation / evenAllocationConstK
}

// desiredVolumeCost penalizes the gap between the average student
// time-on-timetable and the configured target desired.
func desiredVolumeCost(studentUnits, students, desired int) float64 {
	if students == 0 {
		return 25 * math.Pow(1.2, float64(desired))
	}
	avg := float64(studentUnits) / float64(students)
	return 25 * math.Pow(1.2, float64(desired)-avg)
}

// varietyCost is the mean of 2^DaysSinceLastLesson over the groups this
// timetable places, divided by 1,000,000. A group with no entry in
// GroupStats counts as 0 days. Placing a group whose last lesson is further
// back raises this term.
func varietyCost(inputs CostInputs, groups map[string]bool) float64 {
	if len(groups) == 0 {
		return 0
	}
	var sum float64
	for g := range groups {
		days := 0
		if stats, ok := inputs.GroupStats[g]; ok {
			days = stats.DaysSinceLastLesson
		}
		sum += math.Pow(2, float64(days))
	}
	return sum / (1_000_000 * float64(len(groups)))
}
