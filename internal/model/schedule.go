package model

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrISOFormat     = errors.New("invalid ISO8601 duration")
	ErrEmptySchedule = errors.New("schedule needs either cron or duration")
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a 5 field cron expression or a descriptor like @daily or
// @every 1h.
func ParseCron(expr string) (cron.Schedule, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return nil, errors.New("empty cron expression")
	}
	schedule, err := cronParser.Parse(e)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", e, err)
	}
	return schedule, nil
}

// Validate checks that exactly one of Cron and Duration is set and valid.
func (s Schedule) Validate() error {
	switch {
	case s.Cron != "" && s.Duration != "":
		return errors.New("schedule can't have both cron and duration")
	case s.Cron != "":
		_, err := ParseCron(s.Cron)
		return err
	case s.Duration != "":
		d, err := ParseISODuration(s.Duration)
		if err != nil {
			return fmt.Errorf("schedule.duration %q: %w", s.Duration, err)
		}
		if d <= 0 {
			return fmt.Errorf("schedule.duration %q: must be positive", s.Duration)
		}
		return nil
	default:
		return ErrEmptySchedule
	}
}

// Next returns the next activation after now.
func (s Schedule) Next(now time.Time) (time.Time, error) {
	if s.Cron != "" {
		schedule, err := ParseCron(s.Cron)
		if err != nil {
			return time.Time{}, err
		}
		return schedule.Next(now), nil
	}
	d, err := ParseISODuration(s.Duration)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

// days, hours, minutes and seconds, the last one may have a fraction
var isoDurationRx = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:[.,]\d{1,9})?)S)?)?$`)

// ParseISODuration parses the day and time subset of ISO8601 durations,
// e.g. P1D, PT6H or P1DT1H30M0.5S. Years, months and weeks are rejected as
// their length is not fixed.
func ParseISODuration(dur string) (time.Duration, error) {
	m := isoDurationRx.FindStringSubmatch(dur)
	if m == nil || dur == "P" || strings.HasSuffix(dur, "T") {
		return 0, ErrISOFormat
	}

	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var ret time.Duration
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		whole, frac, _ := strings.Cut(strings.Replace(part, ",", ".", 1), ".")
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrISOFormat, err)
		}
		ret += time.Duration(n) * units[i]
		if frac != "" {
			f, err := strconv.Atoi(frac)
			if err != nil {
				return 0, fmt.Errorf("%w: %s", ErrISOFormat, err)
			}
			ret += time.Duration(float64(f) / math.Pow10(len(frac)) * float64(units[i]))
		}
	}
	return ret, nil
}
