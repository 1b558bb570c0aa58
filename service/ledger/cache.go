package ledger

import "sync"

// ReceiptCache is a session-local map from transaction id to the last-known
// receipt. It is advisory: a miss always falls back to a live fetch, and it
// is never the source of truth. Terminal receipts are kept for the lifetime
// of the client session; pending receipts are hints and are revalidated on
// the next poll.
type ReceiptCache struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt
}

// NewReceiptCache creates an empty cache.
func NewReceiptCache() *ReceiptCache {
	return &ReceiptCache{receipts: make(map[string]*Receipt)}
}

// Get returns the cached receipt for txID, or nil on a miss.
func (c *ReceiptCache) Get(txID string) *Receipt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.receipts[txID]
}

// Put stores a receipt. A terminal receipt is never regressed: once one is
// cached, later pending observations for the same id are dropped.
func (c *ReceiptCache) Put(txID string, r *Receipt) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.receipts[txID]; ok && prev.Terminal() && !r.Terminal() {
		return
	}
	c.receipts[txID] = r
}

// Len returns the number of cached receipts.
func (c *ReceiptCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.receipts)
}
