package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"cassa/internal/core"
	"cassa/internal/entries"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

const defaultCategory = "Other"

// entryTarget resolves {id} against one of the workspace mirrors, answering
// 404 for records outside the group.
func entryTarget(w http.ResponseWriter, r *http.Request, exists func(string) bool, what string) (string, bool) {
	id := mux.Vars(r)["id"]
	if !exists(id) {
		NotFoundError(what + " not found").Write(w)
		return "", false
	}
	return id, true
}

func has[T any](find func(string) (T, bool)) func(string) bool {
	return func(id string) bool {
		_, ok := find(id)
		return ok
	}
}

func (s *Server) month(w http.ResponseWriter, r *http.Request) (MonthParams, bool) {
	mp, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return mp, false
	}
	return mp, true
}

// deleteEntry removes a mirrored record of the current group.
func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request, resource, table, what string,
	exists func(string) bool, del func(ctx context.Context, actor, id string) error) {
	id, ok := entryTarget(w, r, exists, what)
	if !ok {
		return
	}
	if err := del(r.Context(), actorFrom(r).ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	groupID := workspaceFrom(r.Context()).GroupID()
	s.changed(r, groupID, table, log.OpDelete, id)
	mutated(w, http.StatusOK, resource, groupID, what+" deleted", map[string]string{"id": id})
}

// patchEntry applies the sent fields to a mirrored record of the current group.
func patchEntry[T any](s *Server, w http.ResponseWriter, r *http.Request, resource, table, what string,
	find func(string) (T, bool), update func(ctx context.Context, actor, id string, fields gateway.Row) (T, error),
	fields func(*fieldPatch)) {
	id, ok := entryTarget(w, r, has(find), what)
	if !ok {
		return
	}
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	fp := newFieldPatch(p)
	fields(fp)
	row, err := fp.result()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := update(r.Context(), actorFrom(r).ID, id, row)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groupID := workspaceFrom(r.Context()).GroupID()
	s.changed(r, groupID, table, log.OpUpdate, id)
	mutated(w, http.StatusOK, resource, groupID, what+" updated", out)
}

func (s *Server) created(w http.ResponseWriter, r *http.Request, resource, table, what, id string, body any) {
	groupID := workspaceFrom(r.Context()).GroupID()
	s.changed(r, groupID, table, log.OpCreate, id)
	b := NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerChanged(resource, groupID).
		TriggerFormReset().
		TriggerSuccessNotification(what + " added").
		JSON(body)
	b.Write(w)
}

// Expenses

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	mp, ok := s.month(w, r)
	if !ok {
		return
	}
	ws := workspaceFrom(r.Context())
	var list []core.Expense
	if card := r.URL.Query().Get("card"); card != "" {
		list = ws.Expenses.ByCard(card, mp.Year, mp.Month)
	} else {
		list = ws.Expenses.InMonth(mp.Year, mp.Month)
	}
	NewHTMXResponse().JSON(nonNil(list)).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	ws, actor := workspaceFrom(r.Context()), actorFrom(r)
	e, err := expenseFromForm(p, ws, actor, core.DateOf(s.now()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := ws.Expenses.Create(r.Context(), actor.ID, e)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.created(w, r, "expenses", gateway.TableExpenses, "Expense", out.ID, out)
}

func expenseFromForm(p *RequestBodyParser, ws *entries.Workspace, actor core.Actor, today core.Date) (core.Expense, error) {
	var e core.Expense
	var err error
	if e.Description, err = p.Required("description"); err != nil {
		return e, err
	}
	if e.Amount, err = p.Amount("amount"); err != nil {
		return e, err
	}
	if e.Date, err = p.Date("date", today); err != nil {
		return e, err
	}
	e.Category = p.Get("category")
	if e.Category == "" {
		e.Category = defaultCategory
	}
	e.PaidBy = p.Get("paid_by")
	if e.PaidBy == "" {
		e.PaidBy = actor.ID
	} else if !ws.Members.IsMember(e.PaidBy) {
		return e, fmt.Errorf("%w: payer is not a member of the group", core.ErrValidation)
	}
	if card := p.Optional("card_name"); card != nil {
		if _, ok := ws.Cards.ByName(*card); !ok {
			return e, fmt.Errorf("%w: unknown card %q", core.ErrValidation, *card)
		}
		e.CardName = card
	}
	return e, nil
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	s.deleteEntry(w, r, "expenses", gateway.TableExpenses, "Expense", has(ws.Expenses.Find), ws.Expenses.Delete)
}

// Income

func (s *Server) handleListIncome(w http.ResponseWriter, r *http.Request) {
	mp, ok := s.month(w, r)
	if !ok {
		return
	}
	list := workspaceFrom(r.Context()).Income.InMonth(mp.Year, mp.Month)
	NewHTMXResponse().JSON(nonNil(list)).Write(w)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	var in core.IncomeEntry
	var err error
	if in.Description, err = p.Required("description"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Amount, err = p.Amount("amount"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Date, err = p.Date("date", core.DateOf(s.now())); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Category = p.Get("category"); in.Category == "" {
		in.Category = defaultCategory
	}

	ws := workspaceFrom(r.Context())
	out, err := ws.Income.Create(r.Context(), actorFrom(r).ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.created(w, r, "income", gateway.TableIncome, "Income", out.ID, out)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	patchEntry(s, w, r, "income", gateway.TableIncome, "Income", ws.Income.Find, ws.Income.Update,
		func(f *fieldPatch) {
			f.text("description").amount("amount").text("category").date("date")
		})
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	s.deleteEntry(w, r, "income", gateway.TableIncome, "Income", has(ws.Income.Find), ws.Income.Delete)
}

// Recurring income

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	list := ws.Recurring.Items()
	if r.URL.Query().Get("active") == "true" {
		list = ws.Recurring.Active()
	}
	NewHTMXResponse().JSON(nonNil(list)).Write(w)
}

func (s *Server) handleUpcomingRecurring(w http.ResponseWriter, r *http.Request) {
	list := workspaceFrom(r.Context()).Recurring.Upcoming(s.now())
	NewHTMXResponse().JSON(nonNil(list)).Write(w)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	var ri core.RecurringIncome
	var err error
	if ri.Description, err = p.Required("description"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if ri.Amount, err = p.Amount("amount"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if ri.DayOfMonth, err = p.Int("day_of_month", 0); err != nil {
		s.writeError(w, r, err)
		return
	}
	if ri.StartDate, err = p.Date("start_date", core.DateOf(s.now())); err != nil {
		s.writeError(w, r, err)
		return
	}
	if ri.EndDate, err = p.OptionalDate("end_date"); err != nil {
		s.writeError(w, r, err)
		return
	}
	ri.Active = p.Bool("active", true)

	ws := workspaceFrom(r.Context())
	out, err := ws.Recurring.Create(r.Context(), actorFrom(r).ID, ri)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.created(w, r, "recurring-income", gateway.TableRecurringIncome, "Recurring income", out.ID, out)
}

func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	patchEntry(s, w, r, "recurring-income", gateway.TableRecurringIncome, "Recurring income",
		ws.Recurring.Find, ws.Recurring.Update,
		func(f *fieldPatch) {
			f.text("description").amount("amount").integer("day_of_month").
				date("start_date").optDate("end_date").boolean("active")
		})
}

func (s *Server) handleToggleRecurring(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	id, ok := entryTarget(w, r, has(ws.Recurring.Find), "Recurring income")
	if !ok {
		return
	}
	out, err := ws.Recurring.Toggle(r.Context(), actorFrom(r).ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.changed(r, ws.GroupID(), gateway.TableRecurringIncome, log.OpUpdate, id)
	msg := "Recurring income paused"
	if out.Active {
		msg = "Recurring income resumed"
	}
	mutated(w, http.StatusOK, "recurring-income", ws.GroupID(), msg, out)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	s.deleteEntry(w, r, "recurring-income", gateway.TableRecurringIncome, "Recurring income",
		has(ws.Recurring.Find), ws.Recurring.Delete)
}

// Tasks

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	q := r.URL.Query()
	var list []core.Task
	switch {
	case q.Get("assigned_to") != "":
		list = ws.Tasks.AssignedTo(q.Get("assigned_to"))
	case q.Get("status") == "pending":
		list = ws.Tasks.Pending()
	case q.Get("status") == "overdue":
		list = ws.Tasks.Overdue(s.now())
	default:
		list = ws.Tasks.Items()
	}
	NewHTMXResponse().JSON(nonNil(list)).Write(w)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	ws := workspaceFrom(r.Context())
	var t core.Task
	var err error
	if t.Title, err = p.Required("title"); err != nil {
		s.writeError(w, r, err)
		return
	}
	t.Description = p.Get("description")
	if t.DueDate, err = p.OptionalDate("due_date"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if t.AssignedTo = p.Optional("assigned_to"); t.AssignedTo != nil && !ws.Members.IsMember(*t.AssignedTo) {
		s.writeError(w, r, fmt.Errorf("%w: assignee is not a member of the group", core.ErrValidation))
		return
	}

	out, err := ws.Tasks.Create(r.Context(), actorFrom(r).ID, t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.created(w, r, "tasks", gateway.TableTasks, "Task", out.ID, out)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	patchEntry(s, w, r, "tasks", gateway.TableTasks, "Task", ws.Tasks.Find,
		func(ctx context.Context, actor, id string, fields gateway.Row) (core.Task, error) {
			if a, ok := fields["assigned_to"].(string); ok && !ws.Members.IsMember(a) {
				return core.Task{}, fmt.Errorf("%w: assignee is not a member of the group", core.ErrValidation)
			}
			return ws.Tasks.Update(ctx, actor, id, fields)
		},
		func(f *fieldPatch) {
			f.text("title").text("description").optText("assigned_to").optDate("due_date")
		})
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	s.taskTransition(w, r, ws.Tasks.Complete, "Task completed")
}

func (s *Server) handleReopenTask(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	s.taskTransition(w, r, ws.Tasks.Reopen, "Task reopened")
}

func (s *Server) taskTransition(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, actor, id string) (core.Task, error), msg string) {
	ws := workspaceFrom(r.Context())
	id, ok := entryTarget(w, r, has(ws.Tasks.Find), "Task")
	if !ok {
		return
	}
	out, err := apply(r.Context(), actorFrom(r).ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.changed(r, ws.GroupID(), gateway.TableTasks, log.OpUpdate, id)
	mutated(w, http.StatusOK, "tasks", ws.GroupID(), msg, out)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	s.deleteEntry(w, r, "tasks", gateway.TableTasks, "Task", has(ws.Tasks.Find), ws.Tasks.Delete)
}

// Cards

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().JSON(nonNil(workspaceFrom(r.Context()).Cards.Items())).Write(w)
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	var c core.CardConfig
	var err error
	if c.CardName, err = p.Required("card_name"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if c.ClosingDay, err = p.Int("closing_day", 0); err != nil {
		s.writeError(w, r, err)
		return
	}
	if c.DueDay, err = p.Int("due_day", 0); err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.Get("credit_limit") != "" {
		limit, err := p.Amount("credit_limit")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		c.CreditLimit = &limit
	}

	ws := workspaceFrom(r.Context())
	out, err := ws.Cards.Create(r.Context(), actorFrom(r).ID, c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.created(w, r, "cards", gateway.TableCardConfigs, "Card", out.ID, out)
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	patchEntry(s, w, r, "cards", gateway.TableCardConfigs, "Card", ws.Cards.Find, ws.Cards.Update,
		func(f *fieldPatch) {
			f.integer("closing_day").integer("due_day").optAmount("credit_limit")
		})
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	s.deleteEntry(w, r, "cards", gateway.TableCardConfigs, "Card", has(ws.Cards.Find), ws.Cards.Delete)
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
