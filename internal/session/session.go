package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/google/uuid"
)

// ErrNoPDFs is returned by SelectFiles when no selected file is a PDF.
var ErrNoPDFs = errors.New("no PDF files selected")

// UpdateKind tells listeners what changed.
type UpdateKind string

const (
	UpdateFile  UpdateKind = "file_update"
	UpdateState UpdateKind = "session_update"
)

// Update is delivered to session listeners after every change.
type Update struct {
	Kind      UpdateKind `json:"type"`
	SessionID string     `json:"session_id"`
	State     State      `json:"state"`
	File      *FileState `json:"file,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Session is one run from file selection through results or reset.
// All fields are guarded by mu; readers use Snapshot.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	mu           sync.RWMutex
	state        State
	tracker      *Tracker
	transactions []domain.Transaction
	insights     *domain.FinancialInsights
	goalPlan     *domain.GoalPlan
	warning      string
	errMsg       string
	listeners    []func(Update)
	lastActive   time.Time
}

// Snapshot is an immutable copy of a session.
type Snapshot struct {
	ID           string                    `json:"id"`
	UserID       string                    `json:"user_id,omitempty"`
	State        State                     `json:"state"`
	Files        []FileState               `json:"files"`
	Ready        bool                      `json:"ready"`
	Transactions []domain.Transaction      `json:"transactions"`
	Insights     *domain.FinancialInsights `json:"insights,omitempty"`
	GoalPlan     *domain.GoalPlan          `json:"goal_plan,omitempty"`
	Warning      string                    `json:"warning,omitempty"`
	Error        string                    `json:"error,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
}

// New creates an idle session for userID.
func New(userID string) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now(),
		state:     StateIdle,
		tracker:   NewTracker(),
	}
	s.lastActive = s.CreatedAt
	s.tracker.Subscribe(func(fs FileState) {
		s.publish(Update{Kind: UpdateFile, File: &fs})
	})
	return s
}

// Tracker exposes the per-file status tracker.
func (s *Session) Tracker() *Tracker {
	return s.tracker
}

// Subscribe registers fn for every file and state update.
func (s *Session) Subscribe(fn func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Touch marks the session as used at t.
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastActive) {
		s.lastActive = t
	}
}

// LastActive returns when the session last changed or was read.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SelectFiles accepts the PDF files among files and moves the session to
// filesSelected. Non-PDF entries only produce the aggregate warning.
func (s *Session) SelectFiles(files []StatementFile) ([]FileState, string, error) {
	accepted, rejected := FilterPDFs(files)
	warning := ""
	if rejected > 0 {
		warning = NonPDFWarning
	}

	s.mu.Lock()
	s.warning = warning
	if len(accepted) == 0 {
		s.mu.Unlock()
		return nil, warning, ErrNoPDFs
	}
	if err := s.applyLocked(EventSelect); err != nil {
		s.mu.Unlock()
		return nil, warning, err
	}
	s.mu.Unlock()

	states := s.tracker.Reset(accepted)
	s.publishState()
	return states, warning, nil
}

// Begin moves the session into processing and clears earlier results.
func (s *Session) Begin() error {
	s.mu.Lock()
	if err := s.applyLocked(EventStart); err != nil {
		s.mu.Unlock()
		return err
	}
	s.goalPlan = nil
	s.errMsg = ""
	s.mu.Unlock()

	s.publishState()
	return nil
}

// Succeed stores the merged transactions and ends the run successfully.
func (s *Session) Succeed(txs []domain.Transaction) error {
	s.mu.Lock()
	if err := s.applyLocked(EventSucceed); err != nil {
		s.mu.Unlock()
		return err
	}
	s.transactions = txs
	s.mu.Unlock()

	s.publishState()
	return nil
}

// Fail ends the run with a user-facing message.
func (s *Session) Fail(msg string) error {
	s.mu.Lock()
	if err := s.applyLocked(EventFail); err != nil {
		s.mu.Unlock()
		return err
	}
	s.errMsg = msg
	s.mu.Unlock()

	s.publishState()
	return nil
}

// Reset discards files and results and returns the session to idle.
func (s *Session) Reset() error {
	s.mu.Lock()
	if err := s.applyLocked(EventReset); err != nil {
		s.mu.Unlock()
		return err
	}
	s.transactions = nil
	s.insights = nil
	s.goalPlan = nil
	s.warning = ""
	s.errMsg = ""
	s.mu.Unlock()

	s.tracker.Clear()
	s.publishState()
	return nil
}

// SetInsights attaches model insights to a successful session.
func (s *Session) SetInsights(in *domain.FinancialInsights) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights = in
}

// SetGoalPlan attaches a goal plan. Plans only make sense on results.
func (s *Session) SetGoalPlan(plan *domain.GoalPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSuccess {
		return fmt.Errorf("%w: goal plan in %s", ErrInvalidTransition, s.state)
	}
	s.goalPlan = plan
	return nil
}

// Transactions returns a copy of the merged transactions.
func (s *Session) Transactions() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Transaction(nil), s.transactions...)
}

// Snapshot returns a consistent copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		ID:           s.ID,
		UserID:       s.UserID,
		State:        s.state,
		Transactions: append([]domain.Transaction(nil), s.transactions...),
		Insights:     s.insights,
		GoalPlan:     s.goalPlan,
		Warning:      s.warning,
		Error:        s.errMsg,
		CreatedAt:    s.CreatedAt,
	}
	s.mu.RUnlock()

	snap.Files = s.tracker.Files()
	snap.Ready = s.tracker.IsReady()
	return snap
}

func (s *Session) applyLocked(ev Event) error {
	next, err := Transition(s.state, ev)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Session) publishState() {
	s.mu.RLock()
	u := Update{Kind: UpdateState, State: s.state, Error: s.errMsg}
	s.mu.RUnlock()
	s.publish(u)
}

func (s *Session) publish(u Update) {
	now := time.Now()

	s.mu.Lock()
	s.lastActive = now
	u.SessionID = s.ID
	if u.State == "" {
		u.State = s.state
	}
	listeners := append([]func(Update){}, s.listeners...)
	s.mu.Unlock()

	u.Timestamp = now
	for _, fn := range listeners {
		fn(u)
	}
}
