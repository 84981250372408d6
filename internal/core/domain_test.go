package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2025, 3, 15))
	if err != nil || string(b) != `"2025-03-15"` {
		t.Fatalf("marshal got %s (err=%v)", b, err)
	}

	var d Date
	if err := json.Unmarshal([]byte(`"2024-11-30T10:00:00Z"`), &d); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if d.String() != "2024-11-30" {
		t.Fatalf("expected 2024-11-30, got %s", d)
	}
	if err := json.Unmarshal([]byte(`"not a date"`), &d); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestYearMonthAddMonths(t *testing.T) {
	cases := []struct {
		from YearMonth
		n    int
		want YearMonth
	}{
		{YearMonth{2024, 11}, 0, YearMonth{2024, 11}},
		{YearMonth{2024, 11}, 2, YearMonth{2025, 1}},
		{YearMonth{2024, 12}, 1, YearMonth{2025, 1}},
		{YearMonth{2025, 1}, -1, YearMonth{2024, 12}},
		{YearMonth{2025, 3}, 24, YearMonth{2027, 3}},
	}
	for _, tc := range cases {
		if got := tc.from.AddMonths(tc.n); got != tc.want {
			t.Errorf("%v + %d = %v, want %v", tc.from, tc.n, got, tc.want)
		}
	}
}

func TestYearMonthClampDay(t *testing.T) {
	if got := (YearMonth{2025, 2}).ClampDay(31); got.Day() != 28 {
		t.Fatalf("expected Feb 28, got %s", got)
	}
	if got := (YearMonth{2024, 2}).ClampDay(30); got.Day() != 29 {
		t.Fatalf("expected leap Feb 29, got %s", got)
	}
	if got := (YearMonth{2025, 4}).ClampDay(15); got.Day() != 15 {
		t.Fatalf("expected 15, got %s", got)
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Date:        NewDate(2025, 1, 1),
		Description: "ok",
		Amount:      decimal.NewFromInt(1),
		PaidBy:      "u1",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	one := decimal.NewFromInt(1)
	bads := []Expense{
		{Date: Date{}, Description: "a", Amount: one, PaidBy: "u"}, // zero date
		{Date: NewDate(2025, 1, 1), Description: "", Amount: one, PaidBy: "u"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: decimal.Zero, PaidBy: "u"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: one, PaidBy: " "},
	}
	for i, e := range bads {
		err := e.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation kind, got %v", i, err)
		}
	}
}

func TestRecurringIncomeValidate(t *testing.T) {
	end := NewDate(2024, 12, 31)
	cases := []struct {
		name string
		r    RecurringIncome
		want error
	}{
		{"ok", RecurringIncome{Description: "Salary", Amount: decimal.NewFromInt(2000), DayOfMonth: 27, StartDate: NewDate(2025, 1, 1)}, nil},
		{"day zero", RecurringIncome{Description: "Salary", Amount: decimal.NewFromInt(2000), DayOfMonth: 0, StartDate: NewDate(2025, 1, 1)}, ErrInvalidDay},
		{"day 32", RecurringIncome{Description: "Salary", Amount: decimal.NewFromInt(2000), DayOfMonth: 32, StartDate: NewDate(2025, 1, 1)}, ErrInvalidDay},
		{"end before start", RecurringIncome{Description: "Salary", Amount: decimal.NewFromInt(2000), DayOfMonth: 1, StartDate: NewDate(2025, 1, 1), EndDate: &end}, ErrValidation},
		{"no description", RecurringIncome{Amount: decimal.NewFromInt(2000), DayOfMonth: 1, StartDate: NewDate(2025, 1, 1)}, ErrEmptyDescription},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCardValidate(t *testing.T) {
	neg := decimal.NewFromInt(-1)
	cases := []struct {
		c  CardConfig
		ok bool
	}{
		{CardConfig{CardName: "Visa", ClosingDay: 25, DueDay: 10}, true},
		{CardConfig{CardName: "", ClosingDay: 25, DueDay: 10}, false},
		{CardConfig{CardName: "Visa", ClosingDay: 0, DueDay: 10}, false},
		{CardConfig{CardName: "Visa", ClosingDay: 25, DueDay: 40}, false},
		{CardConfig{CardName: "Visa", ClosingDay: 25, DueDay: 10, CreditLimit: &neg}, false},
	}
	for i, tc := range cases {
		err := tc.c.Validate()
		if tc.ok != (err == nil) {
			t.Fatalf("case %d: ok=%v err=%v", i, tc.ok, err)
		}
	}

	if err := (CardBillPayment{CardName: "Visa", Month: 13, Year: 2025}).Validate(); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestTaskValidate(t *testing.T) {
	if err := (Task{Title: "Buy milk"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Task{Title: "  "}).Validate(); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
}

func TestDecodeErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&DecodeError{Table: "tasks", Field: "due_date", Err: inner})
	if !errors.Is(err, inner) {
		t.Fatalf("expected unwrap to inner error")
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Field != "due_date" {
		t.Fatalf("expected DecodeError with field, got %v", err)
	}
	if err.Error() != "decode tasks.due_date: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
