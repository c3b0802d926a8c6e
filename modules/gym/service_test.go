package gym_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
	"github.com/guarzo/gymapi/common/refresh"
	"github.com/guarzo/gymapi/modules/gym"
)

type gymBackend struct {
	groupCalls    atomic.Int32
	exerciseCalls atomic.Int32
	lastGroup     atomic.Value
}

func (b *gymBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		var in model.SignInRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if in.Password != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(model.ErrorBody{Status: "error", Message: "E-mail e/ou senha inválida."})
			return
		}
		_ = json.NewEncoder(w).Encode(model.SignInResponse{
			User:         model.User{ID: "u1", Name: "Ana", Email: in.Email},
			Token:        "T1",
			RefreshToken: "R1",
		})
	})
	mux.HandleFunc("/groups", func(w http.ResponseWriter, r *http.Request) {
		b.groupCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer T1" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(model.ErrorBody{Message: "token.invalid"})
			return
		}
		_ = json.NewEncoder(w).Encode([]string{"costas", "bíceps"})
	})
	mux.HandleFunc("/exercises/bygroup/", func(w http.ResponseWriter, r *http.Request) {
		b.exerciseCalls.Add(1)
		b.lastGroup.Store(r.URL.Path)
		_ = json.NewEncoder(w).Encode([]model.Exercise{{ID: "1", Name: "Remada unilateral", Series: 3, Repetitions: 12, Group: "costas"}})
	})
	return mux
}

func newService(t *testing.T) (gym.GymService, *common.StateStore, *gymBackend) {
	t.Helper()
	backend := &gymBackend{}
	ts := httptest.NewServer(backend.handler())
	t.Cleanup(ts.Close)

	store := common.NewFileStore(t.TempDir() + "/session.json")
	session := gym.NewSession(store.Credentials(), store.Users(), common.NewCacheStore(), nil)
	refresher := common.RefreshFunc(func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
		return nil, &common.ServerError{StatusCode: http.StatusUnauthorized, Message: "refresh rejected"}
	})
	coordinator := refresh.New(store.Credentials(), refresher, session)
	client := gym.NewClient(ts.URL, common.NewHttpClient("t", ts.Client(), time.Second), store.Credentials(), coordinator)
	return gym.NewGymService(client, session), store, backend
}

func TestGymService_SignInPersistsSession(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	user, err := svc.SignIn(ctx, "ana@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	tok, found, err := store.Credentials().Get(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "T1", tok.AccessToken)
	assert.Equal(t, "R1", tok.RefreshToken)

	current, found, err := svc.CurrentUser(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ana@example.com", current.Email)
}

func TestGymService_SignInRejected(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SignIn(ctx, "ana@example.com", "wrong")
	var srvErr *common.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, "E-mail e/ou senha inválida.", srvErr.Message)

	_, found, err := store.Credentials().Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGymService_GroupsAreCached(t *testing.T) {
	svc, _, backend := newService(t)
	ctx := context.Background()
	_, err := svc.SignIn(ctx, "ana@example.com", "123456")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		groups, err := svc.GetGroups(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"costas", "bíceps"}, groups)
	}
	assert.EqualValues(t, 1, backend.groupCalls.Load())

	require.NoError(t, svc.SignOut(ctx))
	_, found, err := svc.CurrentUser(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGymService_ExercisesByGroupEscapesPath(t *testing.T) {
	svc, _, backend := newService(t)
	ctx := context.Background()

	exercises, err := svc.GetExercisesByGroup(ctx, "costas e ombro")
	require.NoError(t, err)
	require.Len(t, exercises, 1)
	assert.Equal(t, "Remada unilateral", exercises[0].Name)
	assert.Equal(t, "/exercises/bygroup/costas e ombro", backend.lastGroup.Load())

	_, err = svc.GetExercisesByGroup(ctx, " ")
	assert.Error(t, err)
	assert.EqualValues(t, 1, backend.exerciseCalls.Load())
}

func TestGymService_UnrecoverableCredentialEndsSession(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	_, err := svc.SignIn(ctx, "ana@example.com", "123456")
	require.NoError(t, err)
	require.NoError(t, store.Credentials().Save(ctx, &oauth2.Token{AccessToken: "stale", RefreshToken: "R1"}))

	_, err = svc.GetGroups(ctx)
	assert.True(t, gym.IsAuthenticationFailed(err))

	_, found, err := svc.CurrentUser(ctx)
	require.NoError(t, err)
	assert.False(t, found, "refresh failure signs the user out")
}

func TestGymService_UpdateProfile(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.SignIn(ctx, "ana@example.com", "123456")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateProfile(ctx, model.User{ID: "u1", Name: "Ana Paula", Email: "ana@example.com"}))
	user, found, err := svc.CurrentUser(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ana Paula", user.Name)
}
