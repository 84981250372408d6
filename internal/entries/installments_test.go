package entries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/gateway/memory"
)

func loadedInstallments(t *testing.T, gw gateway.Gateway) *InstallmentRepository {
	t.Helper()
	repo := NewInstallmentRepository(gw, discard(), testOptions()...)
	if err := repo.Reload(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	return repo
}

func TestCreatePlan(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	repo := loadedInstallments(t, gw)

	plan := core.InstallmentPlan{TotalAmount: decimal.NewFromInt(300), InstallmentCount: 3, StartMonth: 11, StartYear: 2024}
	got, err := repo.CreatePlan(ctx, "u1", "tx-tv", plan)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if len(got) != 3 || repo.Len() != 3 || gw.Calls(gateway.TableInstallments, memory.OpInsert) != 1 {
		t.Fatalf("expected one batch of 3, got %d rows, mirror %d", len(got), repo.Len())
	}
	seq := repo.ForTransaction("tx-tv")
	if seq[0].DueMonth != 11 || seq[2].DueMonth != 1 || seq[2].DueYear != 2025 {
		t.Fatalf("unexpected schedule %+v", seq)
	}

	if _, err := repo.CreatePlan(ctx, "u1", "", core.InstallmentPlan{TotalAmount: decimal.NewFromInt(10), InstallmentCount: 0, StartMonth: 1, StartYear: 2025}); !errors.Is(err, core.ErrInvalidInstallmentCount) {
		t.Fatalf("expected invalid count, got %v", err)
	}
	if _, err := repo.CreatePlan(ctx, "", "", plan); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated, got %v", err)
	}
}

func TestCreatePlanFailureIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	repo := loadedInstallments(t, gw)
	gw.Fail(gateway.TableInstallments, memory.OpInsert, errors.New("timeout"))

	plan := core.InstallmentPlan{TotalAmount: decimal.NewFromInt(120), InstallmentCount: 12, StartMonth: 1, StartYear: 2025}
	if _, err := repo.CreatePlan(ctx, "u1", "tx", plan); err == nil {
		t.Fatalf("expected failure")
	}
	if repo.Len() != 0 || gw.Len(gateway.TableInstallments) != 0 {
		t.Fatalf("nothing should be stored or mirrored")
	}
}

func TestUpcomingAndOverdue(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	repo := loadedInstallments(t, gw)

	plan := core.InstallmentPlan{TotalAmount: decimal.NewFromInt(300), InstallmentCount: 3, StartMonth: 2, StartYear: 2025}
	items, err := repo.CreatePlan(ctx, "u1", "tx", plan)
	if err != nil {
		t.Fatal(err)
	}
	// February is paid; March and April are open
	if _, err := repo.MarkPaid(ctx, "u1", items[0].ID); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	up := repo.Upcoming(now)
	if len(up) != 2 || up[0].DueMonth != 3 || up[1].DueMonth != 4 {
		t.Fatalf("expected March and April, got %+v", up)
	}
	if od := repo.Overdue(now); len(od) != 0 {
		t.Fatalf("expected nothing overdue, got %+v", od)
	}

	if _, err := repo.MarkUnpaid(ctx, "u1", items[0].ID); err != nil {
		t.Fatal(err)
	}
	od := repo.Overdue(now)
	if len(od) != 1 || od[0].DueMonth != 2 {
		t.Fatalf("expected February overdue, got %+v", od)
	}

	if got := repo.TotalDue(2025, 3); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100 due in March, got %s", got)
	}
	if got := repo.DueIn(2025, 5); len(got) != 0 {
		t.Fatalf("expected nothing in May, got %d", len(got))
	}
}
