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

func seedTasks(t *testing.T, gw gateway.Gateway, groupID string, titles ...string) {
	t.Helper()
	for i, title := range titles {
		row, err := gateway.Encode(gateway.TableTasks, core.Task{
			Meta:  core.Meta{ID: groupID + "-" + title, GroupID: groupID, CreatedBy: "u1", CreatedAt: testNow.Add(time.Duration(i) * time.Minute)},
			Title: title,
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := gw.Insert(context.Background(), gateway.TableTasks, []gateway.Row{row}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReloadStates(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	seedTasks(t, gw, "g1", "a", "b")
	repo := NewTaskRepository(gw, discard(), testOptions()...)

	if repo.State() != Idle {
		t.Fatalf("expected idle, got %s", repo.State())
	}
	if err := repo.Reload(ctx, "g1"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if repo.State() != Loaded || repo.Len() != 2 {
		t.Fatalf("expected 2 loaded items, got state=%s len=%d", repo.State(), repo.Len())
	}

	if err := repo.Reload(ctx, "empty-group"); err != nil {
		t.Fatalf("empty group should not fail: %v", err)
	}
	if repo.State() != Loaded || repo.Len() != 0 {
		t.Fatalf("expected empty loaded mirror, got state=%s len=%d", repo.State(), repo.Len())
	}

	boom := errors.New("network down")
	gw.Fail(gateway.TableTasks, memory.OpSelect, boom)
	if err := repo.Reload(ctx, "g1"); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if repo.State() != Failed || !errors.Is(repo.Err(), boom) {
		t.Fatalf("expected failed state, got %s (%v)", repo.State(), repo.Err())
	}

	if err := repo.Reload(ctx, ""); err != nil || repo.State() != Idle {
		t.Fatalf("unbinding should return to idle, got %s (%v)", repo.State(), err)
	}
}

func TestReloadDecodeFailure(t *testing.T) {
	gw := &rowsGateway{Gateway: memory.New(), rows: []gateway.Row{
		{"id": "t1", "group_id": "g1", "title": 42},
	}}
	repo := NewTaskRepository(gw, discard(), testOptions()...)

	err := repo.Reload(context.Background(), "g1")
	var de *core.DecodeError
	if !errors.As(err, &de) || de.Field != "title" {
		t.Fatalf("expected decode error on title, got %v", err)
	}
	if repo.State() != Failed {
		t.Fatalf("expected failed state, got %s", repo.State())
	}
}

func TestStaleReloadIsDiscarded(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	seedTasks(t, mem, "g1", "old")
	seedTasks(t, mem, "g2", "new1", "new2")
	gw := newBlocking(mem, gateway.TableTasks, memory.OpSelect)
	repo := NewTaskRepository(gw, discard(), testOptions()...)

	errc := make(chan error, 1)
	go func() { errc <- repo.Reload(ctx, "g1") }()
	<-gw.entered

	if err := repo.Reload(ctx, "g2"); err != nil {
		t.Fatalf("second reload: %v", err)
	}
	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected first reload to be superseded, got %v", err)
	}

	items := repo.Items()
	if len(items) != 2 {
		t.Fatalf("expected g2 items only, got %+v", items)
	}
	for _, it := range items {
		if it.GroupID != "g2" {
			t.Fatalf("found item from stale group: %+v", it)
		}
	}
}

func TestMutationDuringReloadSurvives(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	seedTasks(t, mem, "g1", "a", "b")
	gw := newSnapshot(mem, gateway.TableTasks)
	repo := NewTaskRepository(gw, discard(), testOptions()...)

	errc := make(chan error, 1)
	go func() { errc <- repo.Reload(ctx, "g1") }()
	<-gw.entered

	created, err := repo.Create(ctx, "u1", core.Task{Title: "during"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Delete(ctx, "u1", "g1-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	close(gw.release)
	if err := <-errc; err != nil {
		t.Fatalf("reload: %v", err)
	}

	if _, ok := repo.Find(created.ID); !ok {
		t.Fatalf("task created during the reload is missing: %+v", repo.Items())
	}
	if _, ok := repo.Find("g1-a"); ok {
		t.Fatalf("task deleted during the reload came back: %+v", repo.Items())
	}
	if repo.Len() != 2 {
		t.Fatalf("expected 2 tasks, got %+v", repo.Items())
	}

	// a later reload has nothing left to replay
	if err := repo.Reload(ctx, "g1"); err != nil || repo.Len() != 2 {
		t.Fatalf("second reload: len=%d err=%v", repo.Len(), err)
	}
}

func TestMutationsStayInBoundGroup(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	seedTasks(t, gw, "g2", "x")
	seedTasks(t, gw, "g1", "a")
	repo := NewTaskRepository(gw, discard(), testOptions()...)
	if err := repo.Reload(ctx, "g1"); err != nil {
		t.Fatal(err)
	}

	if err := repo.Delete(ctx, "u1", "g2-x"); err != nil {
		t.Fatalf("delete of another group's id should be a no-op, got %v", err)
	}
	if n := gw.Len(gateway.TableTasks); n != 2 {
		t.Fatalf("repository of g1 deleted a g2 row, %d tasks left", n)
	}

	if _, err := repo.Update(ctx, "u1", "g2-x", gateway.Row{"title": "stolen"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found for another group's id, got %v", err)
	}
	if _, err := repo.Complete(ctx, "u1", "g2-x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found completing another group's task, got %v", err)
	}
	rows, err := gw.Select(ctx, gateway.From(gateway.TableTasks).Eq(gateway.ColID, "g2-x"))
	if err != nil || len(rows) != 1 {
		t.Fatalf("select g2-x: %v %v", rows, err)
	}
	if rows[0]["title"] != "x" || rows[0]["completed"] != false {
		t.Fatalf("g2 row changed through g1: %v", rows[0])
	}
	if repo.Len() != 1 {
		t.Fatalf("mirror changed, len=%d", repo.Len())
	}
}

func TestMutationForPreviousGroupIsDropped(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	seedTasks(t, mem, "g2", "other")
	gw := newBlocking(mem, gateway.TableTasks, memory.OpInsert)
	repo := NewTaskRepository(gw, discard(), testOptions()...)
	if err := repo.Reload(ctx, "g1"); err != nil {
		t.Fatal(err)
	}

	type result struct {
		task core.Task
		err  error
	}
	done := make(chan result, 1)
	go func() {
		task, err := repo.Create(ctx, "u1", core.Task{Title: "late"})
		done <- result{task, err}
	}()
	<-gw.entered
	if err := repo.Reload(ctx, "g2"); err != nil {
		t.Fatal(err)
	}
	close(gw.release)

	res := <-done
	if res.err != nil {
		t.Fatalf("create: %v", res.err)
	}
	if res.task.GroupID != "g1" {
		t.Fatalf("expected task stamped for g1, got %q", res.task.GroupID)
	}
	if _, ok := repo.Find(res.task.ID); ok {
		t.Fatalf("task for g1 leaked into the g2 mirror")
	}
	if repo.Len() != 1 {
		t.Fatalf("expected only g2's task, got %d", repo.Len())
	}
}

func TestCreateStampsAndOrders(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	repo := NewIncomeRepository(gw, discard(), testOptions()...)
	if err := repo.Reload(ctx, "g1"); err != nil {
		t.Fatal(err)
	}

	for _, day := range []int{5, 20, 10} {
		if _, err := repo.Create(ctx, "u1", core.IncomeEntry{
			Description: "Salary",
			Amount:      decimal.NewFromInt(100),
			Date:        core.NewDate(2025, 3, day),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	items := repo.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Date.Day() != 20 || items[1].Date.Day() != 10 || items[2].Date.Day() != 5 {
		t.Fatalf("expected newest first, got %v %v %v", items[0].Date, items[1].Date, items[2].Date)
	}
	first := items[2]
	if first.ID != "id-001" || first.GroupID != "g1" || first.CreatedBy != "u1" || !first.CreatedAt.Equal(testNow) {
		t.Fatalf("ownership not stamped: %+v", first.Meta)
	}
	if total := repo.TotalFor(2025, 3); !total.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected total 300, got %s", total)
	}
}

func TestMutationGuards(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	repo := NewTaskRepository(gw, discard(), testOptions()...)

	if _, err := repo.Create(ctx, "u1", core.Task{Title: "x"}); !errors.Is(err, ErrUnbound) {
		t.Fatalf("expected unbound error, got %v", err)
	}
	if err := repo.Reload(ctx, "g1"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		call func() error
		want error
	}{
		{"create without actor", func() error { _, err := repo.Create(ctx, "", core.Task{Title: "x"}); return err }, core.ErrNotAuthenticated},
		{"update without actor", func() error { _, err := repo.Update(ctx, "", "id", gateway.Row{"title": "y"}); return err }, core.ErrNotAuthenticated},
		{"delete without actor", func() error { return repo.Delete(ctx, "", "id") }, core.ErrNotAuthenticated},
		{"create invalid", func() error { _, err := repo.Create(ctx, "u1", core.Task{Title: " "}); return err }, core.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := gw.Calls(gateway.TableTasks, memory.OpInsert) + gw.Calls(gateway.TableTasks, memory.OpUpdate) + gw.Calls(gateway.TableTasks, memory.OpDelete); n != 0 {
		t.Fatalf("guards must fail before any remote call, saw %d", n)
	}
}

func TestRemoteFailureLeavesMirror(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	seedTasks(t, gw, "g1", "a")
	repo := NewTaskRepository(gw, discard(), testOptions()...)
	if err := repo.Reload(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
	before := repo.Items()
	boom := errors.New("server error")

	gw.Fail(gateway.TableTasks, memory.OpInsert, boom)
	if _, err := repo.Create(ctx, "u1", core.Task{Title: "new"}); !errors.Is(err, boom) {
		t.Fatalf("expected remote error, got %v", err)
	}
	gw.Fail(gateway.TableTasks, memory.OpUpdate, boom)
	if _, err := repo.Complete(ctx, "u1", before[0].ID); !errors.Is(err, boom) {
		t.Fatalf("expected remote error, got %v", err)
	}
	gw.Fail(gateway.TableTasks, memory.OpDelete, boom)
	if err := repo.Delete(ctx, "u1", before[0].ID); !errors.Is(err, boom) {
		t.Fatalf("expected remote error, got %v", err)
	}

	after := repo.Items()
	if len(after) != 1 || after[0].Completed || after[0].ID != before[0].ID {
		t.Fatalf("mirror changed after failures: %+v", after)
	}
}

func TestUpdateAndDeleteMirror(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	seedTasks(t, gw, "g1", "a", "b")
	repo := NewTaskRepository(gw, discard(), testOptions()...)
	if err := repo.Reload(ctx, "g1"); err != nil {
		t.Fatal(err)
	}

	done, err := repo.Complete(ctx, "u1", "g1-a")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil || !done.CompletedAt.Equal(testNow) {
		t.Fatalf("unexpected completed task %+v", done)
	}
	items := repo.Items()
	if items[len(items)-1].ID != "g1-a" {
		t.Fatalf("completed task should sort last, got %+v", items)
	}
	if got := repo.Pending(); len(got) != 1 || got[0].ID != "g1-b" {
		t.Fatalf("unexpected pending %+v", got)
	}

	if _, err := repo.Update(ctx, "u1", "g1-b", gateway.Row{"title": ""}); !errors.Is(err, core.ErrEmptyTitle) {
		t.Fatalf("expected merged validation failure, got %v", err)
	}

	// a row the mirror has never seen is still updated remotely
	seedTasks(t, gw, "g1", "c")
	if _, err := repo.Update(ctx, "u1", "g1-c", gateway.Row{"title": "renamed"}); err != nil {
		t.Fatalf("update unseen row: %v", err)
	}
	if repo.Len() != 2 {
		t.Fatalf("mirror should ignore unseen ids, len=%d", repo.Len())
	}

	if err := repo.Delete(ctx, "u1", "does-not-exist"); err != nil {
		t.Fatalf("delete of missing id: %v", err)
	}
	if repo.Len() != 2 {
		t.Fatalf("deleting a missing id changed the mirror, len=%d", repo.Len())
	}
	if err := repo.Delete(ctx, "u1", "g1-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := repo.Find("g1-a"); ok || repo.Len() != 1 {
		t.Fatalf("expected g1-a removed, len=%d", repo.Len())
	}
}
