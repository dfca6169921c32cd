package services

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/open-teleop/rov-bridge/domain/teleop"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfiguration marks updates rejected by validation.
var ErrInvalidConfiguration = errors.New("invalid rov configuration")

// ConfigPublisher is notified after every successful update.
// The gateway implements it to broadcast config:updated to all consoles.
type ConfigPublisher interface {
	PublishConfigUpdated(cfg teleop.RovConfiguration)
}

// RovConfigService owns the in-memory vehicle configuration.
type RovConfigService interface {
	Get() teleop.RovConfiguration
	Update(update teleop.ConfigurationUpdate) (teleop.RovConfiguration, error)
	SetPublisher(p ConfigPublisher)
}

type rovConfigService struct {
	logger    customlog.Logger
	publisher ConfigPublisher
	current   teleop.RovConfiguration
	mu        sync.RWMutex
}

// NewRovConfigService creates a store holding initial.
func NewRovConfigService(initial teleop.RovConfiguration, logger customlog.Logger) (RovConfigService, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil in NewRovConfigService")
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	return &rovConfigService{
		logger:  logger,
		current: initial.Clone(),
	}, nil
}

// Get returns a copy of the current configuration.
func (s *rovConfigService) Get() teleop.RovConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update applies a shallow top-level merge. Present fields replace the whole
// corresponding field; a partial sensitivity object drops the omitted label.
func (s *rovConfigService) Update(update teleop.ConfigurationUpdate) (teleop.RovConfiguration, error) {
	if err := update.Validate(); err != nil {
		s.logger.Warnf("Rejected configuration update: %v", err)
		return teleop.RovConfiguration{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	s.mu.Lock()
	s.current = s.current.Merge(update)
	updated := s.current.Clone()
	publisher := s.publisher
	s.mu.Unlock()

	s.logger.Infof("ROV configuration updated (thrusters=%v grippers=%v sensors=%v sensitivity=%v)",
		update.Thrusters != nil, update.Grippers != nil, update.Sensors != nil, update.Sensitivity != nil)

	if publisher != nil {
		publisher.PublishConfigUpdated(updated.Clone())
	}
	return updated, nil
}

// SetPublisher injects the publisher after construction.
func (s *rovConfigService) SetPublisher(p ConfigPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// LoadRovConfiguration reads a YAML seed file. Fields present in the file
// replace the defaults with the same top-level semantics as Update; an empty
// path yields the default configuration.
func LoadRovConfiguration(path string) (teleop.RovConfiguration, error) {
	cfg := teleop.DefaultConfiguration()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return teleop.RovConfiguration{}, fmt.Errorf("error reading rov config file '%s': %w", path, err)
	}

	var seed teleop.ConfigurationUpdate
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return teleop.RovConfiguration{}, fmt.Errorf("error parsing rov config file '%s': %w", path, err)
	}
	if err := seed.Validate(); err != nil {
		return teleop.RovConfiguration{}, fmt.Errorf("%w in '%s': %v", ErrInvalidConfiguration, path, err)
	}

	return cfg.Merge(seed), nil
}
