package scheduler

import (
	"time"

	"github.com/edvin/pgbackup/internal/model"
)

// Minimum age of the newest automatic backup before another one is due.
var minAge = map[model.Frequency]time.Duration{
	model.FrequencyHourly:  time.Hour,
	model.FrequencyDaily:   24 * time.Hour,
	model.FrequencyWeekly:  7 * 24 * time.Hour,
	model.FrequencyMonthly: 28 * 24 * time.Hour,
}

// Due reports whether p calls for a dump at now. last is the creation time
// of the connection's newest automatic backup, nil when there is none.
// Calendar gates are evaluated in now's location.
func Due(p model.BackupPolicy, last *time.Time, now time.Time) bool {
	age, ok := minAge[p.Frequency]
	if !ok {
		return false
	}
	if last != nil && !last.Before(now.Add(-age)) {
		return false
	}
	switch p.Frequency {
	case model.FrequencyHourly:
		return true
	case model.FrequencyDaily:
		return hourOK(p, now)
	case model.FrequencyWeekly:
		return dayOfWeekOK(p, now) && hourOK(p, now)
	default:
		return dayOfMonthOK(p, now) && dayOfWeekOK(p, now) && hourOK(p, now)
	}
}

func hourOK(p model.BackupPolicy, now time.Time) bool {
	return p.Hour == nil || now.Hour() >= *p.Hour
}

// dayOfWeekOK counts days from Monday (1) to Sunday (7).
func dayOfWeekOK(p model.BackupPolicy, now time.Time) bool {
	if p.DayOfWeek == nil {
		return true
	}
	dow := int(now.Weekday())
	if dow == 0 {
		dow = 7
	}
	return dow >= *p.DayOfWeek
}

// dayOfMonthOK clamps a day beyond the end of a short month to its last day.
func dayOfMonthOK(p model.BackupPolicy, now time.Time) bool {
	if p.DayOfMonth == nil {
		return true
	}
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	day := now.Day()
	return day >= *p.DayOfMonth || (*p.DayOfMonth > lastDay && day == lastDay)
}
