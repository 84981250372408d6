package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/gateway/memory"
	"cassa/internal/log"
	sheetsmem "cassa/internal/sheets/memory"
)

func TestExportService_Export(t *testing.T) {
	ctx := context.Background()
	gw, _, g := householdFixture(t)
	reg := seedReminders(t, gw, g.ID)
	w, err := reg.Get(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Income.Create(ctx, "alice", core.IncomeEntry{Description: "Salary", Amount: decimal.NewFromInt(2000), Date: core.NewDate(2025, 3, 1)}); err != nil {
		t.Fatal(err)
	}

	store := sheetsmem.New()
	s := NewExportService(gw, reg, store, log.Discard())

	ref, err := s.Export(ctx, g.ID, 2025, 3)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if ref == "" {
		t.Error("empty reference")
	}

	r, ok := store.Report(g.ID, 2025, 3)
	if !ok {
		t.Fatal("report not written")
	}
	if r.GroupName != "Casa" {
		t.Errorf("GroupName = %q", r.GroupName)
	}
	if !r.Summary.InstallmentsDue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("InstallmentsDue = %s", r.Summary.InstallmentsDue)
	}
	if len(r.Installments) != 1 || r.Installments[0].SequenceNumber != 3 {
		t.Errorf("installments = %+v", r.Installments)
	}
	if len(r.Income) != 1 || !r.Summary.Income.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("income = %+v / %s", r.Income, r.Summary.Income)
	}
}

func TestExportService_Errors(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	reg := newRegistry(gw)

	disabled := NewExportService(gw, reg, nil, log.Discard())
	if disabled.Enabled() {
		t.Error("Enabled() should be false without a writer")
	}
	if _, err := disabled.Export(ctx, "g1", 2025, 3); !errors.Is(err, ErrExportDisabled) {
		t.Errorf("disabled: error = %v", err)
	}

	s := NewExportService(gw, reg, sheetsmem.New(), log.Discard())
	if _, err := s.Export(ctx, "g1", 2025, 13); !errors.Is(err, core.ErrValidation) {
		t.Errorf("bad month: error = %v", err)
	}
	if _, err := s.Export(ctx, "missing", 2025, 3); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing group: error = %v", err)
	}

	boom := errors.New("timeout")
	gw.Fail(gateway.TableGroups, memory.OpSelect, boom)
	if _, err := s.Export(ctx, "g1", 2025, 3); !errors.Is(err, boom) {
		t.Errorf("select failure: error = %v", err)
	}
}

func TestExportService_ExportAll(t *testing.T) {
	ctx := context.Background()
	gw, groups, g := householdFixture(t)
	other, err := groups.CreateGroup(ctx, bob, "Vacanze")
	if err != nil {
		t.Fatal(err)
	}

	store := sheetsmem.New()
	s := NewExportService(gw, newRegistry(gw), store, log.Discard())

	n, err := s.ExportAll(ctx, 2025, 2)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if n != 2 {
		t.Errorf("exported %d groups, want 2", n)
	}
	for _, id := range []string{g.ID, other.ID} {
		if _, ok := store.Report(id, 2025, 2); !ok {
			t.Errorf("no report for %s", id)
		}
	}
}
