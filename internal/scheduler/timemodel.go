// Package scheduler implements the genetic-algorithm timetabling core: the
// Time Model, Candidate Lesson, Timetable and Population components. It has
// no database or HTTP dependency — internal/service wires it to the Data
// Gateway and the Driver.
package scheduler

import "time"

// TimeModel converts between seconds and the integer time units the GA
// reasons about, and reconstructs wall-clock starts from a day index and a
// relative start offset (spec §4.1).
type TimeModel struct {
	SecondsPerUnit int
	TimePerDay     int
	DayStartOffset time.Duration

	// DesiredLessonTime is the target average per-student time-on-timetable,
	// in time units, that the cost function's desired-volume term measures
	// against (spec §4.6 Driver configuration).
	DesiredLessonTime int
}

// DefaultTimeModel matches the spec's stated defaults: 5-minute units, a
// 114-unit (9.5 hour) day, starting at 08:30, with a 44-unit desired lesson
// time.
func DefaultTimeModel() TimeModel {
	return TimeModel{
		SecondsPerUnit:    300,
		TimePerDay:        114,
		DayStartOffset:    8*time.Hour + 30*time.Minute,
		DesiredLessonTime: 44,
	}
}

// DurationUnits floors a duration in seconds to whole time units.
func (m TimeModel) DurationUnits(seconds int) int {
	if m.SecondsPerUnit <= 0 {
		return 0
	}
	return seconds / m.SecondsPerUnit
}

// WallClock reconstructs the absolute start time of a placement: firstDay +
// day·86400s + DayStartOffset + relativeStart·SecondsPerUnit.
func (m TimeModel) WallClock(firstDay time.Time, day, relativeStart int) time.Time {
	offset := time.Duration(day)*24*time.Hour + m.DayStartOffset +
		time.Duration(relativeStart*m.SecondsPerUnit)*time.Second
	return firstDay.Add(offset)
}
