package state

import (
	"context"
	"time"

	"github.com/nholik/hlfb-sentinel/internal/fleet"
)

// Version is the on-disk schema version written by Save.
const Version = 1

// State is the persisted record of the last observed fleet.
type State struct {
	Version int             `json:"version"`
	Machine string          `json:"machine"`
	Fleet   *fleet.Snapshot `json:"fleet,omitempty"`
	SavedAt time.Time       `json:"saved_at"`
}

// Store defines the interface for persisting state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}
