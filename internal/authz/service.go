package authz

import (
	"time"

	"authd.dev/internal/identity"
	"authd.dev/internal/usertoken"
)

// Service carries the role and membership mutators. All state it needs is
// injected at construction, including the feature configuration; nothing is
// read from process globals.
type Service struct {
	store       Store
	features    FeatureConfig
	provisioner *Provisioner
	tokens      *usertoken.Service
	mailer      identity.Mailer
	baseURL     string
	now         func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithMailer wires outbound email for invitation onboarding.
func WithMailer(m identity.Mailer) ServiceOption {
	return func(s *Service) { s.mailer = m }
}

// WithBaseURL sets the application origin used to build absolute links.
// Leaving it empty means the verification-email path can never be attempted
// and onboarding falls back to temporary passwords.
func WithBaseURL(url string) ServiceOption {
	return func(s *Service) { s.baseURL = url }
}

// WithTokens wires the single-use token service.
func WithTokens(t *usertoken.Service) ServiceOption {
	return func(s *Service) { s.tokens = t }
}

// WithClock overrides the time source for tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the mutator service.
func NewService(store Store, features FeatureConfig, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		features:    features,
		provisioner: NewProvisioner(store, features),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provisioner exposes the catalog/role provisioner built for the same
// feature configuration.
func (s *Service) Provisioner() *Provisioner { return s.provisioner }
