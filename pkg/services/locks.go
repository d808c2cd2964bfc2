package services

import "sync"

// PortfolioLocks serializes mutating operations per portfolio. Every
// component that reads-then-writes a portfolio's cash or holdings (trades,
// budget revisions, cohort migration) must hold the portfolio's lock, which
// closes the overspend race between concurrent requests from the same user.
type PortfolioLocks struct {
	locks sync.Map // portfolio ID -> *sync.Mutex
}

// NewPortfolioLocks creates a new lock registry
func NewPortfolioLocks() *PortfolioLocks {
	return &PortfolioLocks{}
}

// Lock acquires the mutex for a portfolio and returns the unlock func
func (p *PortfolioLocks) Lock(portfolioID uint) func() {
	value, _ := p.locks.LoadOrStore(portfolioID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
