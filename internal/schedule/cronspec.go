package schedule

import "time"

// dailySchedule fires every calendar day at a fixed civil time in loc.
//
// Implementing cron.Schedule directly (instead of a "m h * * *" spec string)
// lets every recipient keep their own timezone inside a single cron runner.
type dailySchedule struct {
	hour   int
	minute int
	loc    *time.Location
}

func (s dailySchedule) Next(t time.Time) time.Time {
	lt := t.In(s.loc)
	next := time.Date(lt.Year(), lt.Month(), lt.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(t) {
		nd := lt.AddDate(0, 0, 1)
		next = time.Date(nd.Year(), nd.Month(), nd.Day(), s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// onceSchedule fires exactly once at a fixed instant, then disarms itself by
// returning the zero time. The cron runner re-evaluates Next against the wall
// clock on every pass, so a far-future one-off is not subject to the host's
// maximum single-timer delay.
type onceSchedule struct {
	at time.Time
}

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}
