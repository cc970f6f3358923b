// Package calendar decides which days are valid due-date days and advances
// dates by a loan's payment frequency. Everything here is a pure function of
// its inputs so schedule regeneration is stable across calls.
package calendar

import (
	"time"

	"github.com/anexo/cobro/pkg/models"
)

// fixedHolidays maps a country code to its fixed national holidays as
// "MM-DD" keys. Movable feasts are handled per loan via custom holidays.
var fixedHolidays = map[string][]string{
	"CO": {"01-01", "05-01", "07-20", "08-07", "12-08", "12-25"},
	"AR": {"01-01", "03-24", "04-02", "05-01", "05-25", "06-20", "07-09", "12-08", "12-25"},
	"BO": {"01-01", "01-22", "05-01", "06-21", "08-06", "11-02", "12-25"},
	"BR": {"01-01", "04-21", "05-01", "09-07", "10-12", "11-02", "11-15", "12-25"},
	"CL": {"01-01", "05-01", "05-21", "06-21", "07-16", "08-15", "09-18", "09-19", "10-31", "11-01", "12-08", "12-25"},
	"EC": {"01-01", "05-01", "05-24", "08-10", "10-09", "11-02", "11-03", "12-25"},
	"GY": {"01-01", "02-23", "05-01", "05-26", "08-01", "12-25", "12-26"},
	"PY": {"01-01", "03-01", "05-01", "05-14", "05-15", "06-12", "08-15", "09-29", "12-08", "12-25"},
	"PE": {"01-01", "05-01", "06-29", "07-28", "07-29", "08-30", "10-08", "11-01", "12-08", "12-25"},
	"SR": {"01-01", "05-01", "07-01", "11-25", "12-25", "12-26"},
	"UY": {"01-01", "05-01", "07-18", "08-25", "12-25"},
	"VE": {"01-01", "04-19", "05-01", "06-24", "07-05", "07-24", "10-12", "12-25"},
	"CA": {"01-01", "07-01", "11-11", "12-25", "12-26"},
	"US": {"01-01", "07-04", "11-11", "12-25"},
	"MX": {"01-01", "02-05", "03-21", "05-01", "09-16", "11-20", "12-25"},
	"BZ": {"01-01", "01-15", "03-09", "05-01", "09-10", "09-21", "10-12", "11-19", "12-25", "12-26"},
	"CR": {"01-01", "04-11", "05-01", "07-25", "08-02", "08-15", "09-15", "12-01", "12-25"},
	"SV": {"01-01", "05-01", "06-17", "08-06", "09-15", "11-02", "12-25"},
	"GT": {"01-01", "05-01", "06-30", "09-15", "10-20", "11-01", "12-25"},
	"HN": {"01-01", "04-14", "05-01", "09-15", "10-03", "10-12", "10-21", "12-25"},
	"NI": {"01-01", "05-01", "07-19", "09-14", "09-15", "12-08", "12-25"},
	"PA": {"01-01", "01-09", "05-01", "11-03", "11-05", "11-10", "11-28", "12-08", "12-25"},
	"DO": {"01-01", "01-21", "01-26", "02-27", "05-01", "08-16", "09-24", "11-06", "12-25"},
	"CU": {"01-01", "05-01", "07-26", "10-10", "12-25"},
	"HT": {"01-01", "01-02", "05-01", "05-18", "10-17", "11-18", "12-25"},
	"JM": {"01-01", "05-23", "08-01", "08-06", "10-16", "12-25", "12-26"},
	"TT": {"01-01", "03-30", "05-30", "06-19", "08-01", "08-31", "09-24", "12-25", "12-26"},
	"BS": {"01-01", "07-10", "12-25", "12-26"},
	"BB": {"01-01", "01-21", "04-28", "08-01", "11-30", "12-25", "12-26"},
	"LC": {"01-01", "02-22", "12-13", "12-25", "12-26"},
	"VC": {"01-01", "03-14", "10-27", "12-25", "12-26"},
	"GD": {"01-01", "02-07", "12-25", "12-26"},
	"AG": {"01-01", "11-01", "12-09", "12-25", "12-26"},
	"DM": {"01-01", "11-03", "11-04", "12-25", "12-26"},
	"KN": {"01-01", "09-19", "12-25", "12-26"},
}

// countryTimezones maps country codes to IANA timezone names so "today" is
// resolved in the operator's local day, not the server's.
var countryTimezones = map[string]string{
	"CO": "America/Bogota", "AR": "America/Argentina/Buenos_Aires", "BO": "America/La_Paz",
	"BR": "America/Sao_Paulo", "CL": "America/Santiago", "EC": "America/Guayaquil",
	"GY": "America/Guyana", "PY": "America/Asuncion", "PE": "America/Lima",
	"SR": "America/Paramaribo", "UY": "America/Montevideo", "VE": "America/Caracas",
	"BZ": "America/Belize", "CR": "America/Costa_Rica", "SV": "America/El_Salvador",
	"GT": "America/Guatemala", "HN": "America/Tegucigalpa", "NI": "America/Managua",
	"PA": "America/Panama", "CA": "America/Toronto", "US": "America/New_York",
	"MX": "America/Mexico_City", "DO": "America/Santo_Domingo", "CU": "America/Havana",
	"HT": "America/Port-au-Prince", "JM": "America/Jamaica", "TT": "America/Port_of_Spain",
	"BS": "America/Nassau", "BB": "America/Barbados", "LC": "America/St_Lucia",
	"VC": "America/St_Vincent", "GD": "America/Grenada", "AG": "America/Antigua",
	"DM": "America/Dominica", "KN": "America/St_Kitts",
}

// isHoliday checks the country's fixed month-day table and the loan's custom
// ISO dates.
func isHoliday(date time.Time, country string, customHolidays []string) bool {
	key := date.Format("01-02")
	for _, h := range fixedHolidays[country] {
		if h == key {
			return true
		}
	}
	iso := date.Format("2006-01-02")
	for _, h := range customHolidays {
		if h == iso {
			return true
		}
	}
	return false
}

// IsBusinessDay reports whether date is a valid due-date day: not the weekly
// rest day (Sunday) and not a fixed or custom holiday.
func IsBusinessDay(date time.Time, country string, customHolidays []string) bool {
	if date.Weekday() == time.Sunday {
		return false
	}
	return !isHoliday(date, country, customHolidays)
}

// NextDueDate advances from by one frequency step and then rolls forward one
// day at a time until it lands on a business day. Applied to a date that is
// already valid it still advances a full step; it never returns its input.
func NextDueDate(from time.Time, frequency models.Frequency, country string, customHolidays []string) time.Time {
	d := truncateToDay(from)
	switch frequency {
	case models.FrequencyWeekly:
		d = d.AddDate(0, 0, 7)
	case models.FrequencyBiweekly:
		d = d.AddDate(0, 0, 14)
	case models.FrequencyMonthly:
		d = d.AddDate(0, 1, 0)
	default: // daily
		d = d.AddDate(0, 0, 1)
	}
	for !IsBusinessDay(d, country, customHolidays) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Today returns the current date, truncated to midnight, in the country's
// timezone. Unknown countries fall back to UTC.
func Today(country string) time.Time {
	loc := time.UTC
	if name, ok := countryTimezones[country]; ok {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		}
	}
	now := time.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
