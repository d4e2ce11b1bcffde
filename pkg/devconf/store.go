package devconf

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/itohio/aspol/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Store owns the live configuration. Readers always see a complete Values;
// updates replace it in one step.
type Store struct {
	vol storage.Volume
	log logrus.FieldLogger

	mu      sync.RWMutex
	values  Values
	onApply []func(Values)
}

// NewStore creates a store holding the defaults.
func NewStore(vol storage.Volume, log logrus.FieldLogger) *Store {
	return &Store{
		vol:    vol,
		log:    log,
		values: Defaults(),
	}
}

// OnApply registers fn to run after every Apply, outside the store lock.
func (s *Store) OnApply(fn func(Values)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onApply = append(s.onApply, fn)
}

// Get returns the current configuration.
func (s *Store) Get() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

// Load reads the persisted configuration. When none exists the current
// values are written out. Unusable fields keep their current value.
func (s *Store) Load() error {
	if !s.vol.Available() {
		return fmt.Errorf("failed to load config: %w", storage.ErrUnavailable)
	}

	if !s.vol.Exists(FileName) {
		s.log.Info("No stored config, writing defaults")
		return s.Persist()
	}

	data, err := storage.ReadFile(s.vol, FileName)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	s.mu.Lock()
	var rejected []string
	s.values, rejected = s.values.Unmarshal(data)
	s.mu.Unlock()

	if len(rejected) > 0 {
		s.log.WithField("fields", strings.Join(rejected, ",")).Warn("Config fields ignored")
	}
	return nil
}

// Persist writes the current configuration to storage. The file is written
// under a temporary name and renamed over the old one, so an interrupted
// write leaves the previous configuration intact.
func (s *Store) Persist() error {
	data := s.Get().Marshal()
	if err := storage.WriteFile(s.vol, tempFileName, data); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := s.vol.Rename(tempFileName, FileName); err != nil {
		_ = s.vol.Remove(tempFileName)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Apply merges update into the configuration, persists it and notifies
// OnApply subscribers. The new values take effect even if persisting fails.
func (s *Store) Apply(update Update) (Values, error) {
	s.mu.Lock()
	s.values = s.values.Merge(update)
	v := s.values
	callbacks := slices.Clone(s.onApply)
	s.mu.Unlock()

	err := s.Persist()
	if err != nil {
		s.log.WithError(err).Warn("Config not persisted")
	}

	for _, fn := range callbacks {
		fn(v)
	}
	return v, err
}
