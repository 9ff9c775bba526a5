// Package menu implements the transaction context menu as an explicitly
// owned controller: a small state machine over Hidden/Main/Budgets/Note
// views, item-visibility predicates gated by row state and the current
// period, and anchor clamping that keeps the menu inside the viewport. The
// rendering surface subscribes to emitted events; budgeting actions are
// delegated to an ActionDispatcher.
package menu

import (
	"context"
	"time"

	"github.com/sayeni/butty/internal/period"
)

// View enumerates the menu states. Hidden is the zero value.
type View int

const (
	Hidden View = iota
	MainView
	BudgetsView
	NoteView
)

func (v View) String() string {
	switch v {
	case MainView:
		return "main"
	case BudgetsView:
		return "budgets"
	case NoteView:
		return "note"
	default:
		return "hidden"
	}
}

// Event names emitted to subscribers. They mirror the custom DOM events the
// web surface listens for.
const (
	EventMenuOpen       = "txn-menu-open"
	EventRefreshBudgets = "refresh-budgets"
)

// RowContext is the row state captured when the menu opens: the transaction
// identity, when it occurred, whether it is already budgeted, and its note.
type RowContext struct {
	TransactionID string
	OccurredAt    time.Time
	Budgeted      bool
	Note          string
}

// ActionDispatcher performs the row-scoped actions the menu offers. The menu
// only decides when an action may fire; delivery is someone else's job.
type ActionDispatcher interface {
	AssignBudget(ctx context.Context, transactionID string, budgetID int64) error
	RemoveBudget(ctx context.Context, transactionID string) error
	SaveNote(ctx context.Context, transactionID, note string) error
}

// Menu is the controller. It is not safe for concurrent use; the UI event
// loop is its single writer, matching the browser model it replaces.
type Menu struct {
	viewport Rect
	size     Size
	padding  float64
	now      func() time.Time

	actions ActionDispatcher
	emit    func(event string)

	view   View
	row    RowContext
	anchor Point

	// predicate snapshot, computed once when the menu opens
	currentPeriod bool
}

// Option configures a Menu.
type Option func(*Menu)

// WithClock overrides the wall clock, for tests and previews.
func WithClock(now func() time.Time) Option {
	return func(m *Menu) { m.now = now }
}

// WithEmitter registers the event sink. A nil sink drops events.
func WithEmitter(emit func(event string)) Option {
	return func(m *Menu) { m.emit = emit }
}

// New builds a hidden menu of the given rendered size inside viewport,
// keeping padding clear on all sides.
func New(viewport Rect, size Size, padding float64, actions ActionDispatcher, opts ...Option) *Menu {
	m := &Menu{
		viewport: viewport,
		size:     size,
		padding:  padding,
		now:      time.Now,
		actions:  actions,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// View returns the current state.
func (m *Menu) View() View { return m.view }

// Row returns the captured row context. Meaningful only while visible.
func (m *Menu) Row() RowContext { return m.row }

// Open handles a secondary-action event on a row: captures the row state,
// records the anchor, computes the period predicate, and shows the main view.
func (m *Menu) Open(row RowContext, at Point) {
	m.row = row
	m.anchor = at
	m.currentPeriod = period.SamePeriod(row.OccurredAt, m.now())
	m.view = MainView
	m.emitEvent(EventMenuOpen)
}

// Close hides the menu and resets the subview so the next Open starts on the
// main view again.
func (m *Menu) Close() {
	m.view = Hidden
	m.row = RowContext{}
}

// PointerDown handles a primary pointer-down event. It runs logically in the
// capture phase: callers must invoke it before any row-level handler, so an
// outside click closes the menu before the row gets a chance to reopen or
// mutate it. Returns true when the event was consumed by closing the menu.
func (m *Menu) PointerDown(insideMenu bool) bool {
	if m.view == Hidden || insideMenu {
		return false
	}
	m.Close()
	return true
}

// ShowBudgets switches the visible menu to the budget picker.
func (m *Menu) ShowBudgets() {
	if m.view == MainView {
		m.view = BudgetsView
	}
}

// ShowNote switches the visible menu to the note editor.
func (m *Menu) ShowNote() {
	if m.view == MainView {
		m.view = NoteView
	}
}

// Back returns from a subview to the main view.
func (m *Menu) Back() {
	if m.view == BudgetsView || m.view == NoteView {
		m.view = MainView
	}
}

// AssignBudgetVisible reports whether the "Assign budget" item is shown:
// only for unbudgeted rows from the current wall-clock month.
func (m *Menu) AssignBudgetVisible() bool {
	return m.view != Hidden && !m.row.Budgeted && m.currentPeriod
}

// RemoveBudgetVisible reports whether the "Remove budget" item is shown:
// only for budgeted rows from the current wall-clock month.
func (m *Menu) RemoveBudgetVisible() bool {
	return m.view != Hidden && m.row.Budgeted && m.currentPeriod
}

// AssignBudget dispatches the assign action for the captured row and asks
// visible budget lists to reload.
func (m *Menu) AssignBudget(ctx context.Context, budgetID int64) error {
	if !m.AssignBudgetVisible() {
		return nil
	}
	if err := m.actions.AssignBudget(ctx, m.row.TransactionID, budgetID); err != nil {
		return err
	}
	m.row.Budgeted = true
	m.emitEvent(EventRefreshBudgets)
	m.Close()
	return nil
}

// RemoveBudget dispatches the unassign action for the captured row.
func (m *Menu) RemoveBudget(ctx context.Context) error {
	if !m.RemoveBudgetVisible() {
		return nil
	}
	if err := m.actions.RemoveBudget(ctx, m.row.TransactionID); err != nil {
		return err
	}
	m.row.Budgeted = false
	m.emitEvent(EventRefreshBudgets)
	m.Close()
	return nil
}

// SaveNote persists the note for the captured row and keeps the menu open on
// the note view so the user sees the saved text.
func (m *Menu) SaveNote(ctx context.Context, note string) error {
	if m.view == Hidden {
		return nil
	}
	if err := m.actions.SaveNote(ctx, m.row.TransactionID, note); err != nil {
		return err
	}
	m.row.Note = note
	return nil
}

// Position returns the menu's top-left corner: the recorded anchor clamped
// so the menu box stays inside the viewport minus the padding margin.
func (m *Menu) Position() Point {
	return clamp(m.anchor, m.size, m.viewport, m.padding)
}

// SetViewport re-clamps after a viewport change (resize, on-screen keyboard)
// using the originally recorded anchor, not the current menu position, so
// repeated changes never make the menu drift.
func (m *Menu) SetViewport(viewport Rect) {
	m.viewport = viewport
}

func (m *Menu) emitEvent(event string) {
	if m.emit != nil {
		m.emit(event)
	}
}
