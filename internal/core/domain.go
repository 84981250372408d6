package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

const (
	maxDescriptionLen = 200
	MaxInstallments   = 360
)

type (
	Role string

	// Meta carries the ownership fields shared by every group-scoped row.
	// Embedded without a JSON tag so its fields flatten into the record.
	Meta struct {
		ID        string    `json:"id"`
		GroupID   string    `json:"group_id"`
		CreatedBy string    `json:"created_by"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Actor is the authenticated user performing an operation.
	Actor struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Group struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedBy string    `json:"created_by"`
		CreatedAt time.Time `json:"created_at"`
	}

	Member struct {
		Meta
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		Role        Role   `json:"role"`
	}

	Invite struct {
		Meta
		Email      string     `json:"email"`
		SecretHash string     `json:"secret_hash"`
		ExpiresAt  time.Time  `json:"expires_at"`
		AcceptedAt *time.Time `json:"accepted_at"`
		AcceptedBy *string    `json:"accepted_by"`
	}

	Expense struct {
		Meta
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		PaidBy      string          `json:"paid_by"`
		Date        Date            `json:"date"`
		CardName    *string         `json:"card_name"`
	}

	IncomeEntry struct {
		Meta
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Date        Date            `json:"date"`
	}

	RecurringIncome struct {
		Meta
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		DayOfMonth  int             `json:"day_of_month"`
		Active      bool            `json:"active"`
		StartDate   Date            `json:"start_date"`
		EndDate     *Date           `json:"end_date"`
	}

	Task struct {
		Meta
		Title       string     `json:"title"`
		Description string     `json:"description"`
		AssignedTo  *string    `json:"assigned_to"`
		DueDate     *Date      `json:"due_date"`
		Completed   bool       `json:"completed"`
		CompletedAt *time.Time `json:"completed_at"`
	}

	CardConfig struct {
		Meta
		CardName    string           `json:"card_name"`
		ClosingDay  int              `json:"closing_day"`
		DueDay      int              `json:"due_day"`
		CreditLimit *decimal.Decimal `json:"credit_limit"`
	}

	CardBillPayment struct {
		Meta
		CardName string          `json:"card_name"`
		Month    int             `json:"month"`
		Year     int             `json:"year"`
		IsPaid   bool            `json:"is_paid"`
		PaidAt   *time.Time      `json:"paid_at"`
		PaidBy   *string         `json:"paid_by"`
		Amount   decimal.Decimal `json:"amount"`
	}

	Installment struct {
		Meta
		TransactionID     string          `json:"transaction_id"`
		SequenceNumber    int             `json:"sequence_number"`
		TotalInstallments int             `json:"total_installments"`
		Amount            decimal.Decimal `json:"amount"`
		DueMonth          int             `json:"due_month"`
		DueYear           int             `json:"due_year"`
		Paid              bool            `json:"paid"`
		PaidAt            *time.Time      `json:"paid_at"`
	}

	InstallmentPlan struct {
		TotalAmount      decimal.Decimal
		InstallmentCount int
		StartMonth       int
		StartYear        int
	}
)

// Metadata exposes the embedded Meta for stamping by repositories.
func (m *Meta) Metadata() *Meta { return m }

// Due returns the installment's due month as a YearMonth.
func (i Installment) Due() YearMonth { return YearMonth{Year: i.DueYear, Month: i.DueMonth} }

// Period returns the billing month the payment refers to.
func (p CardBillPayment) Period() YearMonth { return YearMonth{Year: p.Year, Month: p.Month} }

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleMember
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if len(g.Name) > 100 {
		return fmt.Errorf("%w: group name too long (max 100 characters)", ErrValidation)
	}
	return nil
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: empty user id", ErrValidation)
	}
	if !m.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

func (e Expense) Validate() error {
	if err := validateDescription(e.Description); err != nil {
		return err
	}
	if err := validateAmount(e.Amount); err != nil {
		return err
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.PaidBy) == "" {
		return fmt.Errorf("%w: empty payer", ErrValidation)
	}
	return nil
}

func (i IncomeEntry) Validate() error {
	if err := validateDescription(i.Description); err != nil {
		return err
	}
	if err := validateAmount(i.Amount); err != nil {
		return err
	}
	return i.Date.Validate()
}

func (r RecurringIncome) Validate() error {
	if err := validateDescription(r.Description); err != nil {
		return err
	}
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
		return ErrInvalidDay
	}
	if err := r.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if r.EndDate != nil {
		if err := r.EndDate.Validate(); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if r.EndDate.Before(r.StartDate.Time) {
			return fmt.Errorf("%w: end date must be after start date", ErrValidation)
		}
	}
	return nil
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if len(t.Title) > maxDescriptionLen {
		return fmt.Errorf("%w: title too long (max %d characters)", ErrValidation, maxDescriptionLen)
	}
	if t.DueDate != nil {
		if err := t.DueDate.Validate(); err != nil {
			return fmt.Errorf("invalid due date: %w", err)
		}
	}
	return nil
}

func (c CardConfig) Validate() error {
	if strings.TrimSpace(c.CardName) == "" {
		return ErrEmptyCardName
	}
	if c.ClosingDay < 1 || c.ClosingDay > 31 {
		return fmt.Errorf("%w: closing day", ErrInvalidDay)
	}
	if c.DueDay < 1 || c.DueDay > 31 {
		return fmt.Errorf("%w: due day", ErrInvalidDay)
	}
	if c.CreditLimit != nil && c.CreditLimit.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (p CardBillPayment) Validate() error {
	if strings.TrimSpace(p.CardName) == "" {
		return ErrEmptyCardName
	}
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (p InstallmentPlan) Validate() error {
	if p.InstallmentCount < 1 || p.InstallmentCount > MaxInstallments {
		return ErrInvalidInstallmentCount
	}
	if p.StartMonth < 1 || p.StartMonth > 12 {
		return ErrInvalidMonth
	}
	if err := validateAmount(p.TotalAmount); err != nil {
		return err
	}
	return nil
}

func validateDescription(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmptyDescription
	}
	if len(s) > maxDescriptionLen {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, maxDescriptionLen)
	}
	return nil
}

func validateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
