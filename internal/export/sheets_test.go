package export

import (
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/services"
)

func brl(t *testing.T, cents int64) core.Money {
	t.Helper()
	m, err := core.FromCents(cents, "BRL")
	if err != nil {
		t.Fatalf("FromCents: %v", err)
	}
	return m
}

func TestBuildReportRows(t *testing.T) {
	report := &services.SettlementReport{
		HouseholdID: "hh-1",
		From:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Total:       brl(t, 40000),
		Balances: []services.PartnerBalance{
			{PartnerID: "a", Paid: brl(t, 30000), Owed: brl(t, 20000), Net: brl(t, 10000)},
			{PartnerID: "b", Paid: brl(t, 10000), Owed: brl(t, 20000), Net: brl(t, -10000)},
		},
		Transfers: []services.Transfer{
			{FromPartnerID: "b", ToPartnerID: "a", Amount: brl(t, 10000)},
		},
	}

	rows := buildReportRows(report)

	// Header + column row + 2 balances + transfer header + 1 transfer.
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}
	if rows[0][1] != "hh-1" || rows[0][2] != "2025-03-01" {
		t.Errorf("header row = %v", rows[0])
	}
	if rows[2][0] != "a" || rows[2][3] != "BRL 100.00" {
		t.Errorf("balance row = %v", rows[2])
	}
	if rows[5][1] != "b" || rows[5][2] != "a" || rows[5][3] != "BRL 100.00" {
		t.Errorf("transfer row = %v", rows[5])
	}
}

func TestBuildReportRowsWithoutTransfers(t *testing.T) {
	report := &services.SettlementReport{
		HouseholdID: "hh-1",
		From:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Total:       brl(t, 0),
	}

	rows := buildReportRows(report)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header rows only", len(rows))
	}
}
