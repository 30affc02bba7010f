package repository

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/CedricFinance/pollwatch/domain/entities"
	"github.com/CedricFinance/pollwatch/domain/services"
)

type memoryRepository struct {
	mu      sync.Mutex
	content []byte
}

// NewMemory keeps the encoded state in memory. Nothing survives a restart.
func NewMemory() services.Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Load(ctx context.Context) (entities.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return decodeState(r.content)
}

func (r *memoryRepository) Save(ctx context.Context, state entities.State) error {
	content, err := json.Marshal(state)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.content = content
	r.mu.Unlock()

	return nil
}
