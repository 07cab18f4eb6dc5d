package storagecredit

// SeedCredit is a test helper that sets an account's deposited credit when
// using the in-memory store.
func SeedCredit(s Store, accountID string, deposited int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.credits[accountID] = Credit{AccountID: accountID, Deposited: deposited}
	}
}
