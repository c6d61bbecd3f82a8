// Package accounts manages the pool of metered credentials and routes new
// work onto them. Every credential carries a prepaid budget; trackUsage is
// the sole mutator of the ledger. Like the rest of the shared store the
// ledger is eventually consistent: two processes can both read a near-empty
// account and overdraw it, which depletion tolerates (remaining may go
// negative before the status flips).
package accounts

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/triad-sh/triad/internal/coord"
	"github.com/triad-sh/triad/internal/events"
	"github.com/triad-sh/triad/internal/store"
)

// Account statuses.
const (
	StatusActive   = "active"
	StatusDepleted = "depleted"
)

// Account is one metered credential in the pool.
//
// Invariant: CreditsRemaining = InitialCredits - CreditsUsed, and status is
// depleted exactly when CreditsRemaining has crossed to zero or below.
type Account struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Credential       string     `json:"credential"`
	InitialCredits   float64    `json:"initialCredits"`
	CreditsRemaining float64    `json:"creditsRemaining"`
	CreditsUsed      float64    `json:"creditsUsed"`
	TasksCompleted   int        `json:"tasksCompleted"`
	Status           string     `json:"status"`
	AddedAt          time.Time  `json:"addedAt"`
	LastUsed         *time.Time `json:"lastUsed,omitempty"`
}

// Usable reports whether the account can be billed against.
func (a *Account) Usable() bool {
	return a.Status == StatusActive && a.CreditsRemaining > 0
}

// UsageEntry is one immutable line in the usage log.
type UsageEntry struct {
	ID          string    `json:"id"`
	AccountName string    `json:"accountName"`
	Cost        float64   `json:"cost"`
	Timestamp   time.Time `json:"timestamp"`
}

// PoolStatus is the aggregate view over the ledger and usage log.
type PoolStatus struct {
	Total            int     `json:"total"`
	Active           int     `json:"active"`
	Depleted         int     `json:"depleted"`
	TotalCredits     float64 `json:"totalCredits"`
	CreditsUsed      float64 `json:"creditsUsed"`
	CreditsRemaining float64 `json:"creditsRemaining"`
	TasksCompleted   int     `json:"tasksCompleted"`
	AvgCostPerTask   float64 `json:"avgCostPerTask"`
	EstimatedTasks   int     `json:"estimatedTasksRemaining"`
	BudgetExhausted  bool    `json:"budgetExhausted"`
}

// Pool routes work onto the account ledger in the shared store.
type Pool struct {
	store *store.Store
	bus   *events.Bus // nil-safe
}

// NewPool creates a Pool over the shared store.
func NewPool(s *store.Store, bus *events.Bus) *Pool {
	return &Pool{store: s, bus: bus}
}

// Add registers a new credential. Duplicate names conflict.
func (p *Pool) Add(name, credential string, initialCredits float64) (Account, error) {
	if name == "" {
		return Account{}, coord.MissingField("name")
	}
	if credential == "" {
		return Account{}, coord.MissingField("credential")
	}
	if initialCredits <= 0 {
		return Account{}, &coord.ValidationError{Field: "initialCredits", Reason: "must be positive"}
	}

	p.store.Lock()
	defer p.store.Unlock()

	ledger, err := p.load()
	if err != nil {
		return Account{}, err
	}
	if indexByName(ledger, name) >= 0 {
		return Account{}, fmt.Errorf("account %s already exists: %w", name, coord.ErrConflict)
	}

	acct := Account{
		ID:               uuid.NewString(),
		Name:             name,
		Credential:       credential,
		InitialCredits:   initialCredits,
		CreditsRemaining: initialCredits,
		Status:           StatusActive,
		AddedAt:          time.Now(),
	}
	ledger = append(ledger, acct)
	if err := p.store.Write(store.DocAccounts, ledger); err != nil {
		return Account{}, fmt.Errorf("add account: %w", err)
	}
	return acct, nil
}

// Remove deletes an account from the pool by name.
func (p *Pool) Remove(name string) error {
	p.store.Lock()
	defer p.store.Unlock()

	ledger, err := p.load()
	if err != nil {
		return err
	}
	idx := indexByName(ledger, name)
	if idx < 0 {
		return fmt.Errorf("account %s: %w", name, coord.ErrNotFound)
	}
	ledger = append(ledger[:idx], ledger[idx+1:]...)
	if err := p.store.Write(store.DocAccounts, ledger); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}
	return nil
}

// List returns every account in the pool.
func (p *Pool) List() ([]Account, error) {
	p.store.RLock()
	defer p.store.RUnlock()
	return p.load()
}

// Get returns one account by name.
func (p *Pool) Get(name string) (Account, error) {
	p.store.RLock()
	defer p.store.RUnlock()

	ledger, err := p.load()
	if err != nil {
		return Account{}, err
	}
	idx := indexByName(ledger, name)
	if idx < 0 {
		return Account{}, fmt.Errorf("account %s: %w", name, coord.ErrNotFound)
	}
	return ledger[idx], nil
}

// Next picks by round-robin-by-recency: among usable accounts, the one with
// the oldest (never-used first) lastUsed timestamp.
func (p *Pool) Next() (Account, error) {
	usable, err := p.usable()
	if err != nil {
		return Account{}, err
	}

	sort.SliceStable(usable, func(i, j int) bool {
		a, b := usable[i].LastUsed, usable[j].LastUsed
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return usable[0], nil
}

// Optimal picks greedily: the usable account with the most remaining credit.
func (p *Pool) Optimal() (Account, error) {
	usable, err := p.usable()
	if err != nil {
		return Account{}, err
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].CreditsRemaining > usable[j].CreditsRemaining
	})
	return usable[0], nil
}

// AllocateBatch spreads n units of work over the usable accounts by simple
// round-robin, so a batch touches every credential before any is exhausted.
func (p *Pool) AllocateBatch(n int) ([]Account, error) {
	if n <= 0 {
		return nil, &coord.ValidationError{Field: "n", Reason: "must be positive"}
	}
	usable, err := p.usable()
	if err != nil {
		return nil, err
	}

	allocation := make([]Account, 0, n)
	for i := 0; i < n; i++ {
		allocation = append(allocation, usable[i%len(usable)])
	}
	return allocation, nil
}

// Track bills cost against an account: credits move from remaining to used,
// the task counter and lastUsed advance, and the account flips to depleted
// when remaining reaches zero or below. An immutable usage-log entry is
// appended alongside.
func (p *Pool) Track(name string, cost float64) (Account, error) {
	if name == "" {
		return Account{}, coord.MissingField("name")
	}
	if cost < 0 {
		return Account{}, &coord.ValidationError{Field: "cost", Reason: "must not be negative"}
	}

	p.store.Lock()
	defer p.store.Unlock()

	ledger, err := p.load()
	if err != nil {
		return Account{}, err
	}
	idx := indexByName(ledger, name)
	if idx < 0 {
		return Account{}, fmt.Errorf("account %s: %w", name, coord.ErrNotFound)
	}

	now := time.Now()
	acct := &ledger[idx]
	acct.CreditsUsed += cost
	acct.CreditsRemaining -= cost
	acct.TasksCompleted++
	acct.LastUsed = &now

	depleted := false
	if acct.CreditsRemaining <= 0 && acct.Status == StatusActive {
		acct.Status = StatusDepleted
		depleted = true
	}

	if err := p.store.Write(store.DocAccounts, ledger); err != nil {
		return Account{}, fmt.Errorf("track usage: %w", err)
	}

	var log []UsageEntry
	if err := p.store.Read(store.DocUsageLog, &log); err != nil {
		return Account{}, fmt.Errorf("read usage log: %w", err)
	}
	log = append(log, UsageEntry{
		ID:          uuid.NewString(),
		AccountName: name,
		Cost:        cost,
		Timestamp:   now,
	})
	if err := p.store.Write(store.DocUsageLog, log); err != nil {
		return Account{}, fmt.Errorf("append usage log: %w", err)
	}

	if p.bus != nil {
		p.bus.Publish(events.NewEvent(events.EventUsageTracked, "", map[string]any{
			"account": name, "cost": cost,
		}))
		if depleted {
			p.bus.Publish(events.NewEvent(events.EventAccountDepleted, "", map[string]any{
				"account": name,
			}))
		}
	}
	return *acct, nil
}

// recentUsageWindow bounds the burn-rate average to the latest entries.
const recentUsageWindow = 100

// Status aggregates the ledger and estimates how many more tasks the
// remaining budget covers at the recent average cost.
func (p *Pool) Status() (PoolStatus, error) {
	p.store.RLock()
	defer p.store.RUnlock()

	ledger, err := p.load()
	if err != nil {
		return PoolStatus{}, err
	}
	var log []UsageEntry
	if err := p.store.Read(store.DocUsageLog, &log); err != nil {
		return PoolStatus{}, fmt.Errorf("read usage log: %w", err)
	}

	var st PoolStatus
	st.Total = len(ledger)
	for _, a := range ledger {
		st.TotalCredits += a.InitialCredits
		st.CreditsUsed += a.CreditsUsed
		st.CreditsRemaining += a.CreditsRemaining
		st.TasksCompleted += a.TasksCompleted
		switch a.Status {
		case StatusActive:
			st.Active++
		case StatusDepleted:
			st.Depleted++
		}
	}

	recent := log
	if len(recent) > recentUsageWindow {
		recent = recent[len(recent)-recentUsageWindow:]
	}
	if len(recent) > 0 {
		var sum float64
		for _, u := range recent {
			sum += u.Cost
		}
		st.AvgCostPerTask = sum / float64(len(recent))
	}
	if st.AvgCostPerTask > 0 {
		st.EstimatedTasks = int(st.CreditsRemaining / st.AvgCostPerTask)
	}
	st.BudgetExhausted = st.CreditsRemaining <= 0
	return st, nil
}

func (p *Pool) load() ([]Account, error) {
	var ledger []Account
	if err := p.store.Read(store.DocAccounts, &ledger); err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	return ledger, nil
}

func (p *Pool) usable() ([]Account, error) {
	p.store.RLock()
	defer p.store.RUnlock()

	ledger, err := p.load()
	if err != nil {
		return nil, err
	}

	var usable []Account
	for _, a := range ledger {
		if a.Usable() {
			usable = append(usable, a)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("no active account with remaining credits: %w", coord.ErrBudgetExhausted)
	}
	return usable, nil
}

func indexByName(ledger []Account, name string) int {
	for i := range ledger {
		if ledger[i].Name == name {
			return i
		}
	}
	return -1
}
