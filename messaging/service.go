// Package messaging implements end-to-end encryption for crew messages.
//
// Each message is sealed once with a fresh AES-256-GCM content key, and that
// key is wrapped separately for every recipient against their published
// public key. Key records live in a directory service via the keystore
// package; private keys never leave the sender's or recipient's process.
package messaging

import (
	"io"
	"sync"
	"time"

	"github.com/crewchat/crewseal/keystore"
	"github.com/sirupsen/logrus"
)

// Service is the crew-message encryption service. All methods are safe for
// concurrent use.
type Service struct {
	keys    *keystore.Store
	members MembershipProvider
	limiter *rateLimiter
	stepUp  StepUpVerifier

	sensitive  map[string]bool
	keyAlg     string
	maxContent int
	maxKeyAge  time.Duration

	locks pairLocks
	log   *logrus.Logger
	now   func() time.Time
}

// New creates a Service over the given key store and membership provider.
func New(keys *keystore.Store, members MembershipProvider, opts ...Option) *Service {
	s := &Service{
		keys:       keys,
		members:    members,
		limiter:    newRateLimiter(DefaultRateLimit, DefaultRateWindow),
		keyAlg:     DefaultKeyAlgorithm,
		maxContent: DefaultMaxContentSize,
		maxKeyAge:  DefaultMaxKeyAge,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.New()
		s.log.SetOutput(io.Discard)
	}
	return s
}

// audit emits a structured security event. Audit lines carry identifiers
// only, never key material or plaintext.
func (s *Service) audit(event string, fields logrus.Fields) {
	fields["event"] = event
	s.log.WithFields(fields).Info("audit")
}

func rateKey(userID, crewID string) string {
	return userID + "/" + crewID
}

// pairLocks serializes lifecycle operations per (user, crew) identity so an
// in-process Initialize and Rotate cannot interleave. Cross-process races
// are handled by the keystore's compare-and-swap.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (p *pairLocks) get(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locks == nil {
		p.locks = make(map[string]*sync.Mutex)
	}
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}
