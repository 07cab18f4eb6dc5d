package registry

import (
	"context"
	"sync"
)

type approvalKey struct {
	tokenID   string
	accountID string
}

type inMemoryRepository struct {
	mu        sync.Mutex
	tokens    map[string]Token
	approvals map[approvalKey]Approval
	nextApp   uint64
}

// NewMemoryRepository constructs an in-memory token repository, used when no
// database is configured and throughout the unit tests.
func NewMemoryRepository() Repository {
	return &inMemoryRepository{
		tokens:    make(map[string]Token),
		approvals: make(map[approvalKey]Approval),
	}
}

func (r *inMemoryRepository) CreateToken(_ context.Context, token Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[token.ID]; exists {
		return ErrDuplicateToken
	}
	r.tokens[token.ID] = token
	return nil
}

func (r *inMemoryRepository) Token(_ context.Context, tokenID string) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenID]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return token, nil
}

func (r *inMemoryRepository) SetOwner(_ context.Context, tokenID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenID]
	if !ok {
		return ErrTokenNotFound
	}
	token.OwnerID = ownerID
	r.tokens[tokenID] = token
	return nil
}

func (r *inMemoryRepository) PutApproval(_ context.Context, approval Approval) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := approvalKey{tokenID: approval.TokenID, accountID: approval.AccountID}
	_, replaced := r.approvals[key]
	r.approvals[key] = approval
	return replaced, nil
}

func (r *inMemoryRepository) ApprovalFor(_ context.Context, tokenID, accountID string) (Approval, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	approval, ok := r.approvals[approvalKey{tokenID: tokenID, accountID: accountID}]
	return approval, ok, nil
}

func (r *inMemoryRepository) ClearApprovals(_ context.Context, tokenID string) ([]Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Approval
	for key, approval := range r.approvals {
		if key.tokenID == tokenID {
			removed = append(removed, approval)
			delete(r.approvals, key)
		}
	}
	return removed, nil
}

func (r *inMemoryRepository) NextApprovalID(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextApp++
	return r.nextApp, nil
}
