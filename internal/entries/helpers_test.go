package entries

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cassa/internal/gateway"
	"cassa/internal/gateway/memory"
	"cassa/internal/log"
)

var testNow = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

func testOptions() []Option {
	var n atomic.Int64
	return []Option{
		WithClock(func() time.Time { return testNow }),
		WithIDs(func() string { return fmt.Sprintf("id-%03d", n.Add(1)) }),
	}
}

// blockingGateway holds calls for one table until released.
type blockingGateway struct {
	*memory.Gateway
	table   string
	op      string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlocking(gw *memory.Gateway, table, op string) *blockingGateway {
	return &blockingGateway{
		Gateway: gw,
		table:   table,
		op:      op,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingGateway) wait(ctx context.Context, table, op string) error {
	if table != b.table || op != b.op {
		return nil
	}
	first := false
	b.once.Do(func() { first = true; close(b.entered) })
	if !first {
		return nil
	}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingGateway) Select(ctx context.Context, q gateway.Query) ([]gateway.Row, error) {
	if err := b.wait(ctx, q.Table, memory.OpSelect); err != nil {
		return nil, err
	}
	return b.Gateway.Select(ctx, q)
}

func (b *blockingGateway) Insert(ctx context.Context, table string, rows []gateway.Row) ([]gateway.Row, error) {
	if err := b.wait(ctx, table, memory.OpInsert); err != nil {
		return nil, err
	}
	return b.Gateway.Insert(ctx, table, rows)
}

// snapshotGateway runs the first Select of a table at once but holds its
// result until released, so the caller sees a snapshot older than any write
// made in between.
type snapshotGateway struct {
	*memory.Gateway
	table   string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newSnapshot(gw *memory.Gateway, table string) *snapshotGateway {
	return &snapshotGateway{Gateway: gw, table: table, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *snapshotGateway) Select(ctx context.Context, q gateway.Query) ([]gateway.Row, error) {
	rows, err := g.Gateway.Select(ctx, q)
	if q.Table != g.table {
		return rows, err
	}
	first := false
	g.once.Do(func() { first = true; close(g.entered) })
	if first {
		<-g.release
	}
	return rows, err
}

// rowsGateway serves fixed rows from Select.
type rowsGateway struct {
	*memory.Gateway
	rows []gateway.Row
}

func (g *rowsGateway) Select(context.Context, gateway.Query) ([]gateway.Row, error) {
	return g.rows, nil
}

func discard() *log.Logger { return log.Discard() }
