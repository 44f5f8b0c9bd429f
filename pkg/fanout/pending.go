package fanout

import (
	"sort"
	"sync"

	"github.com/chris/fuelpay/pkg/models"
)

// PendingSet is one customer's view of their pending transactions, kept
// current from a snapshot plus the change stream.
//
// Statuses only move forward, so once an id has been seen resolved any later
// pending copy of it is a redelivery and is ignored.
type PendingSet struct {
	mu       sync.Mutex
	pending  map[string]models.Transaction
	resolved map[string]struct{}
}

// NewPendingSet creates an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{
		pending:  make(map[string]models.Transaction),
		resolved: make(map[string]struct{}),
	}
}

// Replace discards the current contents in favour of a reconciliation read.
func (p *PendingSet) Replace(txs []models.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = make(map[string]models.Transaction, len(txs))
	for _, tx := range txs {
		if tx.Status != models.PENDING {
			p.resolved[tx.Id] = struct{}{}
			continue
		}
		if _, done := p.resolved[tx.Id]; done {
			continue
		}
		p.pending[tx.Id] = *tx.Clone()
	}
}

// Apply folds one changed record into the set and reports whether the set changed.
func (p *PendingSet) Apply(tx *models.Transaction) bool {
	if tx == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if tx.Status != models.PENDING {
		p.resolved[tx.Id] = struct{}{}
		if _, ok := p.pending[tx.Id]; ok {
			delete(p.pending, tx.Id)
			return true
		}
		return false
	}
	if _, done := p.resolved[tx.Id]; done {
		return false
	}
	if _, ok := p.pending[tx.Id]; ok {
		return false
	}
	p.pending[tx.Id] = *tx.Clone()
	return true
}

// Has reports whether id is pending.
func (p *PendingSet) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[id]
	return ok
}

// Len is the number of pending transactions.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// List returns the pending transactions, newest first.
func (p *PendingSet) List() []models.Transaction {
	p.mu.Lock()
	out := make([]models.Transaction, 0, len(p.pending))
	for _, tx := range p.pending {
		out = append(out, *tx.Clone())
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Id > out[j].Id
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
