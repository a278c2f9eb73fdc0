package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/devJinesh/DocuQuery/internal/kvstore"
	"github.com/devJinesh/DocuQuery/internal/model"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

const (
	SettingsKey = "docuquery_settings"
	ColorKey    = "docuquery_color"
)

// Store persists the optional backend overrides as a single record. Reads
// never fail: an absent, unreadable or corrupt record reads as empty.
type Store struct {
	kv kvstore.Store
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) Get(ctx context.Context) model.Settings {
	data, err := s.kv.Get(ctx, SettingsKey)
	if err != nil {
		if !errors.Is(err, appErr.ErrNotFound) {
			logutil.GetLogger(ctx).Warn("read settings failed", zap.Error(err))
		}
		return model.Settings{}
	}
	var out model.Settings
	if err := json.Unmarshal(data, &out); err != nil {
		logutil.GetLogger(ctx).Warn("settings record is corrupt, ignoring", zap.Error(err))
		return model.Settings{}
	}
	return out.Trimmed()
}

// Set replaces the persisted record with the trimmed values. When every
// field is blank the record is deleted instead.
func (s *Store) Set(ctx context.Context, in model.Settings) error {
	trimmed := in.Trimmed()
	if trimmed.IsEmpty() {
		return s.Clear(ctx)
	}
	data, err := json.Marshal(trimmed)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, SettingsKey, data); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Debug("settings saved",
		zap.Bool("has_api_base_url", trimmed.APIBaseURL != ""),
		zap.Bool("has_api_key", trimmed.APIKey != ""),
		zap.Bool("has_model", trimmed.Model != ""),
	)
	return nil
}

// Update merges the non-blank fields of patch over the current record in
// memory and writes the result as a whole.
func (s *Store) Update(ctx context.Context, patch model.Settings) error {
	current := s.Get(ctx)
	patch = patch.Trimmed()
	if patch.APIBaseURL != "" {
		current.APIBaseURL = patch.APIBaseURL
	}
	if patch.APIKey != "" {
		current.APIKey = patch.APIKey
	}
	if patch.Model != "" {
		current.Model = patch.Model
	}
	return s.Set(ctx, current)
}

func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, SettingsKey)
}

// Preference is a persisted boolean stored under its own key, independent
// of the settings record.
type Preference struct {
	kv         kvstore.Store
	key        string
	defaultVal bool
}

func NewPreference(kv kvstore.Store, key string, defaultVal bool) *Preference {
	return &Preference{kv: kv, key: key, defaultVal: defaultVal}
}

func NewColorPreference(kv kvstore.Store) *Preference {
	return NewPreference(kv, ColorKey, true)
}

func (p *Preference) Get(ctx context.Context) bool {
	data, err := p.kv.Get(ctx, p.key)
	if err != nil {
		return p.defaultVal
	}
	v, err := strconv.ParseBool(string(data))
	if err != nil {
		return p.defaultVal
	}
	return v
}

func (p *Preference) Set(ctx context.Context, v bool) error {
	return p.kv.Set(ctx, p.key, []byte(strconv.FormatBool(v)))
}
