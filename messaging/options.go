package messaging

import (
	"time"

	"github.com/crewchat/crewseal/crypto"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxContentSize bounds message plaintext.
	DefaultMaxContentSize = 64 * 1024
	// DefaultMaxKeyAge is the key age after which Status reports rotation due.
	DefaultMaxKeyAge = 30 * 24 * time.Hour
	// DefaultKeyAlgorithm is the key-wrap scheme for new identities.
	DefaultKeyAlgorithm = crypto.AlgorithmX25519Wrap
)

// Option configures a Service.
type Option func(*Service)

// WithRateLimit sets the per-identity operation budget per sliding window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(s *Service) {
		s.limiter = newRateLimiter(limit, window)
	}
}

// WithMaxContentSize sets the maximum plaintext size in bytes.
func WithMaxContentSize(n int) Option {
	return func(s *Service) {
		s.maxContent = n
	}
}

// WithMaxKeyAge sets the key age threshold for Status's rotation-due signal.
func WithMaxKeyAge(d time.Duration) Option {
	return func(s *Service) {
		s.maxKeyAge = d
	}
}

// WithKeyAlgorithm sets the key-wrap scheme used for new identities.
func WithKeyAlgorithm(algorithm string) Option {
	return func(s *Service) {
		s.keyAlg = algorithm
	}
}

// WithStepUp requires step-up verification before decrypting the named
// message types.
func WithStepUp(verifier StepUpVerifier, messageTypes ...string) Option {
	return func(s *Service) {
		s.stepUp = verifier
		s.sensitive = make(map[string]bool, len(messageTypes))
		for _, t := range messageTypes {
			s.sensitive[t] = true
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}
