package storage

import (
	"context"
	stderrors "errors"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/types"
)

const settingsKey = "settings"

// SettingsStore persists installation settings as a single document.
// Implements types.SettingsRepository.
type SettingsStore struct {
	bucket kvBucket
}

// NewSettingsStore creates a settings repository over the given bucket.
func NewSettingsStore(bucket kvBucket) *SettingsStore {
	return &SettingsStore{bucket: bucket}
}

// Get returns the stored settings, or zero-value settings when nothing
// has been saved yet.
func (s *SettingsStore) Get(ctx context.Context) (*types.Settings, error) {
	var settings types.Settings
	if err := getJSON(ctx, s.bucket, settingsKey, &settings); err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return &types.Settings{}, nil
		}
		return nil, errors.WrapTransient(err, "storage", "Get", "load settings")
	}
	return &settings, nil
}

// Save stores the settings, last writer wins.
func (s *SettingsStore) Save(ctx context.Context, settings *types.Settings) error {
	if err := putJSON(ctx, s.bucket, settingsKey, settings); err != nil {
		return errors.WrapTransient(err, "storage", "Save", "store settings")
	}
	return nil
}
