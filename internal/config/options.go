package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the accepted format for --date-from and --date-to.
const DateLayout = "2006-01-02"

// ErrInvalidOption is returned for malformed run options (dates or tag).
var ErrInvalidOption = errors.New("invalid option")

// DateRange is the optional reporting window requested by the caller.
// An empty From means "yesterday"; an empty To means "up to today".
type DateRange struct {
	From string
	To   string
}

// IsZero reports whether no range was requested.
func (r DateRange) IsZero() bool {
	return r.From == "" && r.To == ""
}

// Resolve returns the date_from and date_to query values for the given clock.
// A missing From resolves to the day before now in now's location.
func (r DateRange) Resolve(now time.Time) (from, to string) {
	from = r.From
	if from == "" {
		from = now.AddDate(0, 0, -1).Format(DateLayout)
	}
	return from, r.To
}

// ParseDateRange validates the raw flag values.
func ParseDateRange(from, to string) (DateRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if to != "" && from == "" {
		return DateRange{}, fmt.Errorf("%w: you cannot provide a date-to without a date-from", ErrInvalidOption)
	}
	if from != "" && !isValidDate(from) {
		return DateRange{}, fmt.Errorf("%w: date-from must use format YYYY-MM-DD and be a valid date", ErrInvalidOption)
	}
	if to != "" && !isValidDate(to) {
		return DateRange{}, fmt.Errorf("%w: date-to must use format YYYY-MM-DD and be a valid date", ErrInvalidOption)
	}
	return DateRange{From: from, To: to}, nil
}

func isValidDate(value string) bool {
	_, err := time.Parse(DateLayout, value)
	return err == nil
}

// Tag is an extra leading report column, given on the command line as name:value.
type Tag struct {
	Name  string
	Value string
}

// IsZero reports whether no tag was requested.
func (t Tag) IsZero() bool {
	return t.Name == ""
}

// ParseTag parses "name:value". An empty input yields the zero Tag.
func ParseTag(raw string) (Tag, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Tag{}, nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Tag{}, fmt.Errorf("%w: tag must use format tagname:value (for example month:january or q:q1)", ErrInvalidOption)
	}
	return Tag{Name: strings.TrimSpace(parts[0]), Value: strings.TrimSpace(parts[1])}, nil
}
