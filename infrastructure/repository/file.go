package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CedricFinance/pollwatch/domain/entities"
	"github.com/CedricFinance/pollwatch/domain/services"
)

type fileRepository struct {
	path string
}

// NewFile keeps the state in a JSON document on disk. A missing file loads as
// an empty state.
func NewFile(path string) services.Repository {
	return &fileRepository{path: path}
}

func (r *fileRepository) Load(ctx context.Context) (entities.State, error) {
	content, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return entities.NewState(), nil
	}
	if err != nil {
		return entities.State{}, err
	}

	return decodeState(content)
}

// Save writes to a temporary file first so a crash never leaves a truncated
// document behind.
func (r *fileRepository) Save(ctx context.Context, state entities.State) error {
	content, err := json.Marshal(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), r.path)
}

func decodeState(content []byte) (entities.State, error) {
	if len(content) == 0 {
		return entities.NewState(), nil
	}

	var state entities.State
	if err := json.Unmarshal(content, &state); err != nil {
		return entities.State{}, fmt.Errorf("invalid state document: %w", err)
	}
	if state.Polls == nil {
		state.Polls = map[string]*entities.Subscription{}
	}
	return state, nil
}
