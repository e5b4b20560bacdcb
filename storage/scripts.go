package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/natsclient"
	"github.com/flowkit/topicflow/types"
)

// ScriptStore persists scripts keyed by name. Implements
// types.ScriptRepository.
type ScriptStore struct {
	bucket kvBucket
}

// NewScriptStore creates a script repository over the given bucket.
func NewScriptStore(bucket kvBucket) *ScriptStore {
	return &ScriptStore{bucket: bucket}
}

func scriptKey(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidData, "storage", "scriptKey", "use empty script name")
	}
	return "script." + name, nil
}

// Get returns the script by name, errors.ErrScriptNotFound when absent.
func (s *ScriptStore) Get(ctx context.Context, name string) (*types.Script, error) {
	key, err := scriptKey(name)
	if err != nil {
		return nil, err
	}
	var script types.Script
	if err := getJSON(ctx, s.bucket, key, &script); err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", errors.ErrScriptNotFound, name)
		}
		return nil, errors.WrapTransient(err, "storage", "Get", "load script")
	}
	return &script, nil
}

// Save creates or updates a script.
func (s *ScriptStore) Save(ctx context.Context, script *types.Script) error {
	key, err := scriptKey(script.Name)
	if err != nil {
		return err
	}
	if err := putJSON(ctx, s.bucket, key, script); err != nil {
		return errors.WrapTransient(err, "storage", "Save", "store script")
	}
	return nil
}

// Delete removes a script by name.
func (s *ScriptStore) Delete(ctx context.Context, name string) error {
	key, err := scriptKey(name)
	if err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, key); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return fmt.Errorf("%w: %s", errors.ErrScriptNotFound, name)
		}
		return errors.WrapTransient(err, "storage", "Delete", "delete script")
	}
	return nil
}
