package http

import (
	"fmt"

	"cassa/internal/core"
	"cassa/internal/gateway"
)

// fieldPatch collects the fields a PATCH request actually sent, converted to
// the column types the gateway stores. The first conversion error sticks.
type fieldPatch struct {
	p   *RequestBodyParser
	row gateway.Row
	err error
}

func newFieldPatch(p *RequestBodyParser) *fieldPatch {
	return &fieldPatch{p: p, row: gateway.Row{}}
}

func (f *fieldPatch) sent(key string) bool {
	return f.err == nil && f.p.Has(key)
}

func (f *fieldPatch) text(key string) *fieldPatch {
	if f.sent(key) {
		f.row[key] = f.p.Get(key)
	}
	return f
}

// optText clears the column when the value is blank.
func (f *fieldPatch) optText(key string) *fieldPatch {
	if f.sent(key) {
		if v := f.p.Optional(key); v != nil {
			f.row[key] = *v
		} else {
			f.row[key] = nil
		}
	}
	return f
}

func (f *fieldPatch) amount(key string) *fieldPatch {
	if f.sent(key) {
		v, err := f.p.Amount(key)
		f.set(key, v, err)
	}
	return f
}

func (f *fieldPatch) optAmount(key string) *fieldPatch {
	if f.sent(key) {
		if f.p.Get(key) == "" {
			f.row[key] = nil
			return f
		}
		v, err := f.p.Amount(key)
		f.set(key, v, err)
	}
	return f
}

func (f *fieldPatch) integer(key string) *fieldPatch {
	if f.sent(key) {
		if f.p.Get(key) == "" {
			f.err = fmt.Errorf("%w: %s is required", core.ErrValidation, key)
			return f
		}
		v, err := f.p.Int(key, 0)
		f.set(key, v, err)
	}
	return f
}

func (f *fieldPatch) date(key string) *fieldPatch {
	if f.sent(key) {
		if f.p.Get(key) == "" {
			f.err = fmt.Errorf("%w: %s is required", core.ErrValidation, key)
			return f
		}
		v, err := f.p.Date(key, core.Date{})
		f.set(key, v, err)
	}
	return f
}

func (f *fieldPatch) optDate(key string) *fieldPatch {
	if f.sent(key) {
		v, err := f.p.OptionalDate(key)
		if err == nil && v == nil {
			f.row[key] = nil
			return f
		}
		if v != nil {
			f.set(key, *v, err)
		} else {
			f.err = err
		}
	}
	return f
}

func (f *fieldPatch) boolean(key string) *fieldPatch {
	if f.sent(key) {
		f.row[key] = f.p.Bool(key, false)
	}
	return f
}

// result returns the collected row, or a validation error when nothing
// updatable was sent.
func (f *fieldPatch) result() (gateway.Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.row) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", core.ErrValidation)
	}
	return f.row, nil
}

func (f *fieldPatch) set(key string, v any, err error) {
	if err != nil {
		f.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	f.row[key] = v
}
