// Package commission computes collector payouts from the same reconciled
// collection log the ledger reads. A collector's weekly delinquency rate
// picks a payout bracket that scales the base commission on gross collected.
// Nothing here errors; missing configuration degrades to a zero commission,
// observable to the caller as a zero factor.
package commission

import (
	"sort"
	"time"

	"github.com/anexo/cobro/pkg/models"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// counts reports whether a log participates in delinquency statistics:
// opening markers and soft-deleted rows never do.
func counts(log *models.CollectionLog) bool {
	return log.Type != models.LogTypeOpening && !log.Deleted()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DelinquencyRate is the percentage of one day's visits that ended without a
// payment: noPago / (pago + noPago) * 100. Zero when the day had no activity.
func DelinquencyRate(dayLogs []models.CollectionLog) decimal.Decimal {
	var pago, noPago int
	for i := range dayLogs {
		if !counts(&dayLogs[i]) {
			continue
		}
		switch dayLogs[i].Type {
		case models.LogTypePayment:
			pago++
		case models.LogTypeNoPayment:
			noPago++
		}
	}
	total := pago + noPago
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(noPago)).Div(decimal.NewFromInt(int64(total))).Mul(oneHundred)
}

// WeekStart returns the Monday of the week containing today.
func WeekStart(today time.Time) time.Time {
	offset := int(today.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7 // Sunday belongs to the week that started the previous Monday
	}
	monday := today.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, monday.Location())
}

// AverageDelinquency is the arithmetic mean of the daily delinquency rates
// over Monday through Saturday of the week containing today, up to today.
// Days without any logged activity are left out of the mean entirely so
// inactivity is neither rewarded nor punished. Callers filter the logs down
// to one collector beforehand when a per-collector figure is wanted.
func AverageDelinquency(logs []models.CollectionLog, today time.Time) decimal.Decimal {
	monday := WeekStart(today)

	sum := decimal.Zero
	activeDays := 0
	for i := 0; i < 6; i++ {
		day := monday.AddDate(0, 0, i)
		if day.After(today) {
			continue
		}

		var dayLogs []models.CollectionLog
		for _, log := range logs {
			if sameDay(log.Date, day) {
				dayLogs = append(dayLogs, log)
			}
		}

		hasActivity := false
		for j := range dayLogs {
			if counts(&dayLogs[j]) {
				hasActivity = true
				break
			}
		}
		if !hasActivity {
			continue
		}
		sum = sum.Add(DelinquencyRate(dayLogs))
		activeDays++
	}

	if activeDays == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(activeDays)))
}

// PayoutFactor returns the payout percent of the first bracket (ascending by
// ceiling) whose MaxMora covers the average delinquency. A rate above every
// ceiling falls back to the highest-ceiling bracket's payout; whether an
// operator intends rates past the last ceiling to pay even less is an open
// business question, so current behavior is preserved. Empty brackets pay
// nothing.
func PayoutFactor(avgDelinquency decimal.Decimal, brackets []models.CommissionBracket) decimal.Decimal {
	if len(brackets) == 0 {
		return decimal.Zero
	}

	sorted := make([]models.CommissionBracket, len(brackets))
	copy(sorted, brackets)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MaxMora.LessThan(sorted[j].MaxMora)
	})

	for _, b := range sorted {
		if avgDelinquency.LessThanOrEqual(b.MaxMora) {
			return b.PayoutPercent
		}
	}
	return sorted[len(sorted)-1].PayoutPercent
}

// FinalCommission applies the base percentage and the performance factor to
// gross collected: gross * base/100 * factor/100, rounded to the currency
// unit.
func FinalCommission(grossCollected, basePercent, payoutFactor decimal.Decimal) decimal.Decimal {
	return grossCollected.
		Mul(basePercent.Div(oneHundred)).
		Mul(payoutFactor.Div(oneHundred)).
		RoundBank(2)
}

// Breakdown splits a collector's gross in a period by payment channel.
type Breakdown struct {
	Cash    decimal.Decimal `json:"cash"`
	Virtual decimal.Decimal `json:"virtual"`
	Renewal decimal.Decimal `json:"renewal"`
	Total   decimal.Decimal `json:"total"`
}

// GrossCollected sums the countable payment logs in [from, to], split into
// cash, bank-transfer and renewal-settlement channels.
func GrossCollected(logs []models.CollectionLog, from, to time.Time) Breakdown {
	b := Breakdown{Cash: decimal.Zero, Virtual: decimal.Zero, Renewal: decimal.Zero, Total: decimal.Zero}
	for i := range logs {
		log := &logs[i]
		if !counts(log) || log.Type != models.LogTypePayment {
			continue
		}
		if log.Date.Before(from) || log.Date.After(to) {
			continue
		}
		if log.Amount.IsNegative() {
			continue
		}
		switch {
		case log.IsRenewal:
			b.Renewal = b.Renewal.Add(log.Amount)
		case log.IsVirtual:
			b.Virtual = b.Virtual.Add(log.Amount)
		default:
			b.Cash = b.Cash.Add(log.Amount)
		}
	}
	b.Total = b.Cash.Add(b.Virtual).Add(b.Renewal)
	return b
}

// Report is one collector's commission statement for a period.
type Report struct {
	AverageDelinquency decimal.Decimal `json:"average_delinquency"`
	PayoutFactor       decimal.Decimal `json:"payout_factor"`
	Gross              Breakdown       `json:"gross"`
	BaseCommission     decimal.Decimal `json:"base_commission"`
	FinalCommission    decimal.Decimal `json:"final_commission"`
}

// BuildReport derives the full commission statement from a collector's logs.
func BuildReport(logs []models.CollectionLog, settings *models.Settings, from, to, today time.Time) Report {
	avg := AverageDelinquency(logs, today)
	factor := PayoutFactor(avg, settings.Brackets)
	gross := GrossCollected(logs, from, to)
	base := gross.Total.Mul(settings.CommissionPercent.Div(oneHundred)).RoundBank(2)
	return Report{
		AverageDelinquency: avg,
		PayoutFactor:       factor,
		Gross:              gross,
		BaseCommission:     base,
		FinalCommission:    FinalCommission(gross.Total, settings.CommissionPercent, factor),
	}
}
