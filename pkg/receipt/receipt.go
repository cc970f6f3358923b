// Package receipt renders line-printer receipt text for field collections.
// Every figure arrives pre-reconciled from the ledger; the formatter never
// recomputes totals so receipts always match what the other screens show.
package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const divider = "-------------------------------"
const frame = "==============================="

// Data is the reconciled snapshot a receipt prints. Populate it from a
// ledger statement, never from stored fields.
type Data struct {
	CompanyName       string
	ClientName        string
	LoanRef           string
	AmountPaid        decimal.Decimal
	RemainingBalance  decimal.Decimal
	PaidInstallments  int
	TotalInstallments int
	StartDate         time.Time
	ExpiryDate        time.Time
	OverdueDays       int
	IsRenewal         bool
	IssuedAt          time.Time
}

func formatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2) + " $"
}

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func header(d Data, title string) string {
	company := strings.ToUpper(d.CompanyName)
	if company == "" {
		company = "ANEXO COBRO"
	}
	return fmt.Sprintf("%s\n       %s\n    %s\n%s", frame, company, title, frame)
}

// Payment renders the official payment receipt. Renewal settlements get the
// liquidation header instead.
func Payment(d Data) string {
	title := "OFFICIAL PAYMENT RECEIPT"
	if d.IsRenewal {
		title = "LIQUIDATION / REINVESTMENT RECEIPT"
	}

	var b strings.Builder
	fmt.Fprintln(&b, header(d, title))
	fmt.Fprintf(&b, "DATE: %s\n", d.IssuedAt.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "LOAN REF: %s\n", strings.ToUpper(d.LoanRef))
	fmt.Fprintln(&b, divider)
	fmt.Fprintf(&b, "CLIENT: %s\n", strings.ToUpper(d.ClientName))
	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "AMOUNT PAID:")
	fmt.Fprintf(&b, ">>> %s <<<\n", formatMoney(d.AmountPaid))
	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "LOAN PROGRESS:")
	fmt.Fprintf(&b, "INSTALLMENTS: %d / %d\n", d.PaidInstallments, d.TotalInstallments)
	fmt.Fprintf(&b, "START: %s\n", formatDate(d.StartDate))
	fmt.Fprintf(&b, "DUE DATE: %s\n", formatDate(d.ExpiryDate))
	fmt.Fprintf(&b, "OVERDUE: %d days\n", d.OverdueDays)
	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "REMAINING BALANCE:")
	fmt.Fprintf(&b, ">>> %s <<<\n", formatMoney(d.RemainingBalance))
	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "This document is a valid record of your transaction.")
	fmt.Fprintln(&b, frame)
	return b.String()
}

// NoPayment renders the default-notification slip left after a visit that
// produced no payment.
func NoPayment(d Data) string {
	var b strings.Builder
	fmt.Fprintln(&b, header(d, "DEFAULT NOTIFICATION"))
	fmt.Fprintln(&b, "VISIT RECORDED ON:")
	fmt.Fprintf(&b, ">>> %s <<<\n", d.IssuedAt.Format("02/01/2006 15:04"))
	fmt.Fprintln(&b, divider)
	fmt.Fprintf(&b, "LOAN REF: %s\n", strings.ToUpper(d.LoanRef))
	fmt.Fprintf(&b, "CLIENT: %s\n", strings.ToUpper(d.ClientName))
	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "STATUS TODAY:")
	fmt.Fprintln(&b, ">>> NO PAYMENT RECORDED <<<")
	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "CURRENT SITUATION:")
	fmt.Fprintf(&b, "PENDING INSTALLMENTS: %d\n", d.TotalInstallments-d.PaidInstallments)
	fmt.Fprintf(&b, "DAYS OVERDUE: %d\n", d.OverdueDays)
	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "TOTAL BALANCE DUE:")
	fmt.Fprintf(&b, ">>> %s <<<\n", formatMoney(d.RemainingBalance))
	fmt.Fprintln(&b, frame)
	return b.String()
}
