package ledger

// SeedBalance is a test helper that sets the balance for an account when using
// the in-memory store. The entry is created if it does not exist.
func SeedBalance(s Store, accountID string, amount int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[accountID] = amount
	}
}
