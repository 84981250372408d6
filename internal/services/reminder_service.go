package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cassa/internal/core"
	"cassa/internal/entries"
	"cassa/internal/gateway"
	"cassa/internal/log"
	"cassa/internal/notify"
)

// WorkspaceSource hands out loaded workspaces by group.
type WorkspaceSource interface {
	Get(ctx context.Context, groupID string) (*entries.Workspace, error)
}

type ReminderConfig struct {
	LeadDays int
	Rules    []string
}

// ReminderReport summarizes one reminder run.
type ReminderReport struct {
	Groups   int
	Sent     int
	Failures int
}

// ReminderService sends each member a digest of what needs attention in
// every group they belong to.
type ReminderService struct {
	gw       gateway.Gateway
	source   WorkspaceSource
	notifier notify.Notifier
	config   ReminderConfig
	now      func() time.Time
	logger   *log.Logger
}

func NewReminderService(gw gateway.Gateway, source WorkspaceSource, notifier notify.Notifier, config ReminderConfig, logger *log.Logger) *ReminderService {
	if len(config.Rules) == 0 {
		config.Rules = DefaultReminderRules
	}
	return &ReminderService{
		gw:       gw,
		source:   source,
		notifier: notifier,
		config:   config,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentReminder),
	}
}

// Run walks every group. A failing group or notification is logged and
// counted; the run continues and the failures are returned joined.
func (s *ReminderService) Run(ctx context.Context) (ReminderReport, error) {
	var report ReminderReport

	rows, err := s.gw.Select(ctx, gateway.From(gateway.TableGroups).OrderBy(gateway.ColID))
	if err != nil {
		return report, fmt.Errorf("list groups: %w", err)
	}
	groups, err := gateway.DecodeAll[core.Group](gateway.TableGroups, rows)
	if err != nil {
		return report, err
	}

	today := core.DateOf(s.now())
	var errs []error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sent, err := s.remindGroup(ctx, g, today)
		report.Groups++
		report.Sent += sent
		if err != nil {
			report.Failures++
			errs = append(errs, fmt.Errorf("group %s: %w", g.ID, err))
			s.logger.ErrorContext(ctx, "Reminder run failed for group",
				log.FieldGroupID, g.ID,
				log.FieldError, err)
		}
	}

	s.logger.InfoContext(ctx, "Reminder run finished",
		"groups", report.Groups,
		"sent", report.Sent,
		"failures", report.Failures)
	return report, errors.Join(errs...)
}

func (s *ReminderService) remindGroup(ctx context.Context, g core.Group, today core.Date) (int, error) {
	w, err := s.source.Get(ctx, g.ID)
	if err != nil {
		return 0, err
	}
	if err := w.Reload(ctx); err != nil {
		return 0, err
	}

	reminders, err := CollectReminders(w, today, s.config.LeadDays, s.config.Rules)
	if err != nil {
		return 0, err
	}
	if len(reminders) == 0 {
		return 0, nil
	}

	sent := 0
	var errs []error
	for _, m := range w.Members.Items() {
		mine := remindersFor(reminders, m.UserID)
		if len(mine) == 0 {
			continue
		}
		msg := notify.Message{
			To:      notify.Recipient{UserID: m.UserID, Name: m.DisplayName, Email: m.Email},
			Subject: digestSubject(g.Name, len(mine)),
			Body:    digestBody(mine),
		}
		if err := s.notifier.Notify(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", m.UserID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func remindersFor(all []Reminder, userID string) []Reminder {
	var out []Reminder
	for _, r := range all {
		if r.AssignedTo == "" || r.AssignedTo == userID {
			out = append(out, r)
		}
	}
	return out
}

func digestSubject(group string, n int) string {
	if n == 1 {
		return fmt.Sprintf("[%s] 1 reminder", group)
	}
	return fmt.Sprintf("[%s] %d reminders", group, n)
}

func digestBody(rs []Reminder) string {
	var b strings.Builder
	for _, r := range rs {
		b.WriteString("- ")
		b.WriteString(r.Text)
		if r.Amount.IsPositive() {
			b.WriteString(" (")
			b.WriteString(core.FormatEuros(r.Amount))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}
