package gym

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
)

// GymService is the higher-level API used by the app.
type GymService interface {
	SignIn(ctx context.Context, email, password string) (*model.User, error)
	SignOut(ctx context.Context) error
	// CurrentUser returns the persisted user when both profile and credential exist.
	CurrentUser(ctx context.Context) (*model.User, bool, error)
	UpdateProfile(ctx context.Context, user model.User) error
	GetGroups(ctx context.Context) ([]string, error)
	GetExercisesByGroup(ctx context.Context, group string) ([]model.Exercise, error)
}

// ErrInvalidSignIn is returned when the sign-in response lacks a user or token.
var ErrInvalidSignIn = errors.New("sign-in response has no user or token")

const readCacheExpiration = 10 * time.Minute

type gymService struct {
	client      Client
	session     *Session
	credentials common.CredentialStore
	users       common.UserStore
	cache       common.CacheRepository
}

// NewGymService constructs a GymService. The session must share the stores given here.
func NewGymService(client Client, session *Session) GymService {
	return &gymService{
		client:      client,
		session:     session,
		credentials: session.credentials,
		users:       session.users,
		cache:       session.cache,
	}
}

// SignIn posts the credentials to /sessions and persists the returned user and token.
func (s *gymService) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	var resp model.SignInResponse
	err := s.client.PostJSON(ctx, "/sessions", model.SignInRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.User.ID == "" {
		return nil, ErrInvalidSignIn
	}

	token := &oauth2.Token{
		AccessToken:  resp.Token,
		TokenType:    "Bearer",
		RefreshToken: resp.RefreshToken,
	}
	if err := s.users.Save(ctx, &resp.User); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	if err := s.credentials.Save(ctx, token); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	return &resp.User, nil
}

func (s *gymService) SignOut(ctx context.Context) error {
	return s.session.SignOut(ctx)
}

func (s *gymService) CurrentUser(ctx context.Context) (*model.User, bool, error) {
	user, found, err := s.users.Get(ctx)
	if err != nil || !found {
		return nil, false, err
	}
	_, found, err = s.credentials.Get(ctx)
	if err != nil || !found {
		return nil, false, err
	}
	return user, true, nil
}

// UpdateProfile replaces the locally persisted profile.
func (s *gymService) UpdateProfile(ctx context.Context, user model.User) error {
	return s.users.Save(ctx, &user)
}

// GetGroups returns the muscle groups, cached for readCacheExpiration.
func (s *gymService) GetGroups(ctx context.Context) ([]string, error) {
	var groups []string
	if err := s.cachedGet(ctx, "gym:groups", "/groups", &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetExercisesByGroup returns the exercises of one muscle group.
func (s *gymService) GetExercisesByGroup(ctx context.Context, group string) ([]model.Exercise, error) {
	if strings.TrimSpace(group) == "" {
		return nil, errors.New("group is required")
	}
	var exercises []model.Exercise
	cacheKey := "gym:exercises:" + group
	endpoint := "/exercises/bygroup/" + url.PathEscape(group)
	if err := s.cachedGet(ctx, cacheKey, endpoint, &exercises); err != nil {
		return nil, err
	}
	return exercises, nil
}

// cachedGet serves endpoint from the read cache, falling back to the API.
func (s *gymService) cachedGet(ctx context.Context, cacheKey, endpoint string, out interface{}) error {
	if s.cache != nil {
		if data, found := s.cache.Get(cacheKey); found {
			if err := model.JSONUnmarshal(data, out); err == nil {
				return nil
			}
			s.cache.Delete(cacheKey)
		}
	}

	if err := s.client.GetJSON(ctx, endpoint, out); err != nil {
		return err
	}

	if s.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			s.cache.Set(cacheKey, data, readCacheExpiration)
		}
	}
	return nil
}
