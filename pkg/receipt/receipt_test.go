package receipt

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func sampleData() Data {
	return Data{
		ClientName:        "Maria Lopez",
		LoanRef:           "a1b2c3d4",
		AmountPaid:        decimal.NewFromInt(25000),
		RemainingBalance:  decimal.NewFromInt(575000),
		PaidInstallments:  1,
		TotalInstallments: 24,
		StartDate:         time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:        time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC),
		OverdueDays:       0,
		IssuedAt:          time.Date(2024, time.January, 2, 9, 30, 0, 0, time.UTC),
	}
}

func TestPayment(t *testing.T) {
	text := Payment(sampleData())

	for _, want := range []string{
		"OFFICIAL PAYMENT RECEIPT",
		"CLIENT: MARIA LOPEZ",
		"LOAN REF: A1B2C3D4",
		">>> 25000.00 $ <<<",
		">>> 575000.00 $ <<<",
		"INSTALLMENTS: 1 / 24",
		"START: 01/01/2024",
		"DUE DATE: 29/01/2024",
		"DATE: 02/01/2024 09:30",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Receipt missing %q:\n%s", want, text)
		}
	}
}

func TestPayment_RenewalTitle(t *testing.T) {
	d := sampleData()
	d.IsRenewal = true
	text := Payment(d)

	if !strings.Contains(text, "LIQUIDATION / REINVESTMENT RECEIPT") {
		t.Error("Renewal receipt should use the liquidation title")
	}
	if strings.Contains(text, "OFFICIAL PAYMENT RECEIPT") {
		t.Error("Renewal receipt should not use the standard title")
	}
}

func TestNoPayment(t *testing.T) {
	d := sampleData()
	d.OverdueDays = 5
	text := NoPayment(d)

	for _, want := range []string{
		"DEFAULT NOTIFICATION",
		">>> NO PAYMENT RECORDED <<<",
		"PENDING INSTALLMENTS: 23",
		"DAYS OVERDUE: 5",
		">>> 575000.00 $ <<<",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Slip missing %q:\n%s", want, text)
		}
	}
}

func TestHeader_CustomCompany(t *testing.T) {
	d := sampleData()
	d.CompanyName = "Prestamos del Valle"
	text := Payment(d)
	if !strings.Contains(text, "PRESTAMOS DEL VALLE") {
		t.Error("Receipt should print the configured company name")
	}
}
