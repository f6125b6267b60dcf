package model

import (
	"sync"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// StateManager manages the fitted state of a composite estimator in a
// thread-safe manner. Composites hold it instead of embedding BaseEstimator
// so that a fitted result can be shared across goroutines.
type StateManager struct {
	mu        sync.RWMutex
	fitted    bool
	nFeatures int
	nSamples  int
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// MarkFitted records a completed fit with its input dimensions. It fails when
// the owner was already fitted, which keeps fit-once composites immutable.
func (s *StateManager) MarkFitted(owner string, nFeatures, nSamples int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fitted {
		return errors.NewModelError(owner+".Fit", "already fitted", nil)
	}
	s.fitted = true
	s.nFeatures = nFeatures
	s.nSamples = nSamples
	return nil
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// RequireFitted returns a NotFittedError if the model has not been fitted.
func (s *StateManager) RequireFitted(owner, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(owner, method)
	}
	return nil
}

// ModelState represents the state of a model for serialization.
type ModelState struct {
	Fitted    bool `json:"fitted"`
	NFeatures int  `json:"n_features,omitempty"`
	NSamples  int  `json:"n_samples,omitempty"`
}

// GetState returns the current state as a ModelState struct.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{Fitted: s.fitted, NFeatures: s.nFeatures, NSamples: s.nSamples}
}
