package sqlgw

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqliteTimestamp has a fixed width so TEXT ordering matches time ordering.
const sqliteTimestamp = "2006-01-02T15:04:05.000000000Z07:00"

type dialect interface {
	name() string
	placeholder(n int) string
	// bind converts a canonical value into one the driver accepts.
	bind(kind gateway.Kind, v any) any
}

type sqliteDialect struct{}

func (sqliteDialect) name() string           { return DriverSQLite }
func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) bind(kind gateway.Kind, v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case core.Date:
		return x.String()
	case time.Time:
		return x.UTC().Format(sqliteTimestamp)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

type postgresDialect struct{}

func (postgresDialect) name() string             { return DriverPostgres }
func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) bind(kind gateway.Kind, v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case core.Date:
		return x.Time
	case time.Time:
		return x.UTC()
	}
	return v
}
