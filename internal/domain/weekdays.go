package domain

import (
	"strings"
	"time"
)

const DefaultDaysAvailable = "{Monday,Tuesday,Wednesday,Thursday,Friday}"

var weekdayNames = map[string][7]string{
	"es": {"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"},
	"pt": {"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"},
	"fr": {"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"},
}

// LocalizedWeekday returns the lower-case weekday name for locale, falling
// back to English for locales without a table.
func LocalizedWeekday(wd time.Weekday, locale string) string {
	lang := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if names, ok := weekdayNames[lang]; ok {
		return names[wd]
	}
	return strings.ToLower(wd.String())
}

// WeekdaySet is the parsed list of days on which appointments are offered.
// Slot generation and booking validation must share one instance.
type WeekdaySet struct {
	names   []string
	allowed map[string]struct{}
	locale  string
}

// ParseAvailableDays accepts "{Monday,Tuesday}" or "Monday, Tuesday". An empty
// value yields the Monday-Friday default.
func ParseAvailableDays(raw, locale string) WeekdaySet {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultDaysAvailable
	}
	raw = strings.Trim(raw, "{}")

	set := WeekdaySet{
		allowed: make(map[string]struct{}),
		locale:  locale,
	}
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		set.names = append(set.names, name)
		set.allowed[strings.ToLower(name)] = struct{}{}
	}
	return set
}

// Names returns the configured day names in the order and spelling they were configured.
func (s WeekdaySet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Allows matches t's weekday against the set by its English name and by its
// name in the configured locale, ignoring case.
func (s WeekdaySet) Allows(t time.Time) bool {
	wd := t.Weekday()
	if _, ok := s.allowed[strings.ToLower(wd.String())]; ok {
		return true
	}
	_, ok := s.allowed[LocalizedWeekday(wd, s.locale)]
	return ok
}
