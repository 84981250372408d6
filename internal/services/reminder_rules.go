// This file implements the Strategy Pattern for reminder collection.
// Each rule looks at one aspect of a loaded workspace and reports what
// needs attention on a given day.

package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/entries"
)

// Reminder is one item of a member's digest. An empty AssignedTo
// addresses every member of the group.
type Reminder struct {
	Rule       string
	Text       string
	Due        core.Date
	Amount     decimal.Decimal
	AssignedTo string
}

// ReminderRule collects reminders from a workspace for today. lead is the
// number of days ahead that still counts as upcoming.
type ReminderRule interface {
	Collect(w *entries.Workspace, today core.Date, lead int) []Reminder
}

const (
	RuleInstallmentsOverdue = "installments_overdue"
	RuleInstallmentsDue     = "installments_due"
	RuleBillsUnpaid         = "bills_unpaid"
	RuleTasksDue            = "tasks_due"
)

// DefaultReminderRules is the digest order.
var DefaultReminderRules = []string{RuleInstallmentsOverdue, RuleBillsUnpaid, RuleInstallmentsDue, RuleTasksDue}

// OverdueInstallmentsRule reports unpaid installments from past months.
type OverdueInstallmentsRule struct{}

func (OverdueInstallmentsRule) Collect(w *entries.Workspace, today core.Date, _ int) []Reminder {
	var out []Reminder
	for _, i := range w.Installments.Overdue(today.Time) {
		out = append(out, Reminder{
			Rule:   RuleInstallmentsOverdue,
			Text:   fmt.Sprintf("Installment %d/%d of %04d-%02d is overdue", i.SequenceNumber, i.TotalInstallments, i.DueYear, i.DueMonth),
			Due:    i.Due().ClampDay(1),
			Amount: i.Amount,
		})
	}
	return out
}

// DueInstallmentsRule reports this month's unpaid installments once the
// month end is within the lead window.
type DueInstallmentsRule struct{}

func (DueInstallmentsRule) Collect(w *entries.Workspace, today core.Date, lead int) []Reminder {
	ym := today.YearMonth()
	end := ym.ClampDay(ym.LastDay())
	if end.Sub(today.Time) > time.Duration(lead)*24*time.Hour {
		return nil
	}
	var out []Reminder
	for _, i := range w.Installments.DueIn(ym.Year, ym.Month) {
		if i.Paid {
			continue
		}
		out = append(out, Reminder{
			Rule:   RuleInstallmentsDue,
			Text:   fmt.Sprintf("Installment %d/%d is due this month", i.SequenceNumber, i.TotalInstallments),
			Due:    end,
			Amount: i.Amount,
		})
	}
	return out
}

// UnpaidBillsRule reports card bills due within the lead window and not
// marked paid, including bills already past due.
type UnpaidBillsRule struct{}

func (UnpaidBillsRule) Collect(w *entries.Workspace, today core.Date, lead int) []Reminder {
	horizon := core.DateOf(today.AddDate(0, 0, lead))
	var out []Reminder
	for _, b := range w.UnpaidBillsDueBy(horizon) {
		verb := "is due"
		if b.DueDate.Before(today.Time) {
			verb = "was due"
		}
		out = append(out, Reminder{
			Rule: RuleBillsUnpaid,
			Text: fmt.Sprintf("%s bill %s on %s", b.Card.CardName, verb, b.DueDate),
			Due:  b.DueDate,
		})
	}
	return out
}

// DueTasksRule reports open tasks due within the lead window, addressed to
// the assignee when there is one.
type DueTasksRule struct{}

func (DueTasksRule) Collect(w *entries.Workspace, today core.Date, lead int) []Reminder {
	horizon := today.AddDate(0, 0, lead)
	var out []Reminder
	for _, t := range w.Tasks.Pending() {
		if t.DueDate == nil || t.DueDate.After(horizon) {
			continue
		}
		r := Reminder{Rule: RuleTasksDue, Text: "Task: " + t.Title, Due: *t.DueDate}
		if t.AssignedTo != nil {
			r.AssignedTo = *t.AssignedTo
		}
		out = append(out, r)
	}
	return out
}

// reminderRules maps rule names to their strategies.
var reminderRules = map[string]ReminderRule{
	RuleInstallmentsOverdue: OverdueInstallmentsRule{},
	RuleInstallmentsDue:     DueInstallmentsRule{},
	RuleBillsUnpaid:         UnpaidBillsRule{},
	RuleTasksDue:            DueTasksRule{},
}

// GetReminderRule returns the rule registered under name.
func GetReminderRule(name string) (ReminderRule, error) {
	rule, ok := reminderRules[name]
	if !ok {
		return nil, fmt.Errorf("unknown reminder rule: %s", name)
	}
	return rule, nil
}

// RegisterReminderRule adds or replaces a rule.
func RegisterReminderRule(name string, rule ReminderRule) {
	reminderRules[name] = rule
}

// CollectReminders runs the named rules in order; within a rule, reminders
// are sorted by due date.
func CollectReminders(w *entries.Workspace, today core.Date, lead int, names []string) ([]Reminder, error) {
	var out []Reminder
	for _, name := range names {
		rule, err := GetReminderRule(name)
		if err != nil {
			return nil, err
		}
		rs := rule.Collect(w, today, lead)
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Due.Before(rs[j].Due.Time) })
		out = append(out, rs...)
	}
	return out, nil
}
