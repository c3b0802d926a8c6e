package gym

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/guarzo/gymapi/common"
)

// Session owns the locally persisted sign-in state: the credential, the user profile
// and any cached API reads.
type Session struct {
	credentials common.CredentialStore
	users       common.UserStore
	cache       common.CacheRepository
	log         *zap.Logger
}

// NewSession creates a Session. cache may be nil.
func NewSession(credentials common.CredentialStore, users common.UserStore, cache common.CacheRepository, log *zap.Logger) *Session {
	return &Session{
		credentials: credentials,
		users:       users,
		cache:       cache,
		log:         common.LoggerOrNop(log),
	}
}

// SignOut removes the credential, the profile and cached reads.
func (s *Session) SignOut(ctx context.Context) error {
	if s.cache != nil {
		s.cache.Flush()
	}
	return errors.Join(
		s.users.Clear(ctx),
		s.credentials.Clear(ctx),
	)
}

// ForceSignOut implements common.SessionNotifier. It is safe to call without an
// active session.
func (s *Session) ForceSignOut(ctx context.Context) {
	if err := s.SignOut(ctx); err != nil {
		s.log.Error("forced sign-out failed", zap.Error(err))
		return
	}
	s.log.Info("session ended, credential could not be recovered")
}
