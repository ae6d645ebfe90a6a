package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Session mutation errors.
var (
	ErrLastPanel     = errors.New("cannot remove the last payment panel")
	ErrPanelNotFound = errors.New("payment panel not found")
	ErrNoPanels      = errors.New("at least one payment panel is required")
)

// Session is the in-progress payment configuration for one order. Both panel
// lists are retained so switching modes never loses work; Mode selects which
// list is active. The JSON shape is the persisted per-order state.
type Session struct {
	OrderID     string    `json:"-"`
	Mode        Mode      `json:"activeTab"`
	FullPanels  []Panel   `json:"fullPaymentPanels"`
	SplitPanels []Panel   `json:"splitPaymentPanels"`
	UpdatedAt   time.Time `json:"timestamp"`
}

// NewSession seeds a session for an order: FULL mode active with the full
// total prefilled, and a two-way even split prepared for SPLIT mode. The
// second split half takes the subtraction remainder so the halves always sum
// to the exact total.
func NewSession(orderID string, total decimal.Decimal) *Session {
	half := total.DivRound(decimal.NewFromInt(2), 2)
	return &Session{
		OrderID: orderID,
		Mode:    ModeFull,
		FullPanels: []Panel{
			{ID: 1, Currency: CurrencyUSD, Method: MethodCash, Amount: total.StringFixed(2)},
		},
		SplitPanels: []Panel{
			{ID: 2, Currency: CurrencyUSD, Method: MethodCash, Amount: half.StringFixed(2)},
			{ID: 3, Currency: CurrencyUSD, Method: MethodCash, Amount: total.Sub(half).StringFixed(2)},
		},
		UpdatedAt: time.Now().UTC(),
	}
}

// Valid reports whether a restored session still holds the structural
// invariants: a known mode and at least one panel in each list. A decoded
// payload that is syntactically fine but structurally empty fails here and
// must be treated like a corrupt one.
func (s *Session) Valid() bool {
	return s.Mode.Valid() && len(s.FullPanels) > 0 && len(s.SplitPanels) > 0
}

// ActivePanels returns the panel list selected by the current mode.
func (s *Session) ActivePanels() []Panel {
	if s.Mode == ModeSplit {
		return s.SplitPanels
	}
	return s.FullPanels
}

func (s *Session) setActivePanels(panels []Panel) {
	if s.Mode == ModeSplit {
		s.SplitPanels = panels
	} else {
		s.FullPanels = panels
	}
}

// nextID returns a session-unique panel id.
func (s *Session) nextID() int {
	max := 0
	for _, p := range s.FullPanels {
		if p.ID > max {
			max = p.ID
		}
	}
	for _, p := range s.SplitPanels {
		if p.ID > max {
			max = p.ID
		}
	}
	return max + 1
}

// AddPanel appends an empty USD cash panel to the active list and returns it.
func (s *Session) AddPanel() Panel {
	p := Panel{ID: s.nextID(), Currency: CurrencyUSD, Method: MethodCash}
	s.setActivePanels(append(s.ActivePanels(), p))
	return p
}

// RemovePanel deletes the identified panel from the active list. Removing the
// last remaining panel is rejected: the panel count never drops below one.
func (s *Session) RemovePanel(id int) error {
	panels := s.ActivePanels()
	for i, p := range panels {
		if p.ID != id {
			continue
		}
		if len(panels) == 1 {
			return ErrLastPanel
		}
		s.setActivePanels(append(panels[:i:i], panels[i+1:]...))
		return nil
	}
	return ErrPanelNotFound
}

// PanelUpdate holds the fields of a panel to change; nil fields are left
// untouched.
type PanelUpdate struct {
	Currency *Currency
	Method   *Method
	Amount   *string
}

// UpdatePanel applies upd to the identified panel in the active list.
// Amounts are sanitized before they are stored.
func (s *Session) UpdatePanel(id int, upd PanelUpdate) error {
	panels := s.ActivePanels()
	for i := range panels {
		if panels[i].ID != id {
			continue
		}
		if upd.Currency != nil {
			panels[i].Currency = *upd.Currency
		}
		if upd.Method != nil {
			panels[i].Method = *upd.Method
		}
		if upd.Amount != nil {
			panels[i].Amount = SanitizeAmount(*upd.Amount)
		}
		return nil
	}
	return ErrPanelNotFound
}

// SetPanels replaces the active list wholesale, sanitizing every amount.
// An empty list is rejected.
func (s *Session) SetPanels(panels []Panel) error {
	if len(panels) == 0 {
		return ErrNoPanels
	}
	for i := range panels {
		panels[i].Amount = SanitizeAmount(panels[i].Amount)
	}
	s.setActivePanels(panels)
	return nil
}

// SwitchMode changes the active settlement mode. The inactive panel list is
// kept as-is so tab switching is lossless.
func (s *Session) SwitchMode(mode Mode) {
	if mode.Valid() {
		s.Mode = mode
	}
}

// Touch stamps the session with the current time.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Store persists in-progress sessions keyed by order id. Load returns
// (nil, nil) when no usable session exists; corrupt entries are discarded and
// reported the same way, never as an error.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, orderID string) (*Session, error)
	Clear(ctx context.Context, orderID string) error
}
