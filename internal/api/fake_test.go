package api

import (
	"context"
	"errors"
	"sync"

	"lifesim/internal/advisory"
	"lifesim/internal/auth"
	"lifesim/internal/depreciation"
	"lifesim/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type fakeAuth struct {
	session auth.Session
	err     error
	signups []string
}

func (f *fakeAuth) SignUp(_ context.Context, email, _, username string) (auth.Session, error) {
	f.signups = append(f.signups, email+"|"+username)
	return f.session, f.err
}

func (f *fakeAuth) Login(context.Context, string, string) (auth.Session, error) {
	return f.session, f.err
}

// tokenVerifier maps bearer tokens to users.
type tokenVerifier map[string]auth.SupabaseUser

func (v tokenVerifier) VerifyAccessToken(_ context.Context, token string) (auth.SupabaseUser, error) {
	u, ok := v[token]
	if !ok {
		return auth.SupabaseUser{}, auth.ErrInvalidToken
	}
	return u, nil
}

type fakePlayers struct {
	mu          sync.Mutex
	ensured     map[uuid.UUID]string
	logins      []uuid.UUID
	tokens      map[uuid.UUID]string
	constraints map[uuid.UUID]*advisory.Constraints
	missions    map[uuid.UUID]uuid.UUID
}

func newFakePlayers() *fakePlayers {
	return &fakePlayers{
		ensured:     map[uuid.UUID]string{},
		tokens:      map[uuid.UUID]string{},
		constraints: map[uuid.UUID]*advisory.Constraints{},
		missions:    map[uuid.UUID]uuid.UUID{},
	}
}

func (f *fakePlayers) EnsurePlayer(_ context.Context, id uuid.UUID, _, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured[id] = username
	return nil
}

func (f *fakePlayers) TouchLogin(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, id)
	return nil
}

func (f *fakePlayers) SetPushToken(_ context.Context, id uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[id] = token
	return nil
}

func (f *fakePlayers) Notifications(context.Context, uuid.UUID, int) ([]store.Notification, error) {
	return []store.Notification{{ID: uuid.New(), Type: "mentor_message", Title: "Mom"}}, nil
}

func (f *fakePlayers) Mentors(context.Context) ([]advisory.Mentor, error) {
	return []advisory.Mentor{{ID: uuid.New(), Name: "Mom", Persona: advisory.Emotional}}, nil
}

func (f *fakePlayers) ActiveConstraints(_ context.Context, id uuid.UUID) (*advisory.Constraints, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.constraints[id], nil
}

func (f *fakePlayers) StartMission(_ context.Context, id uuid.UUID, _ string, c advisory.Constraints) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constraints[id] = &c
	mission := uuid.New()
	f.missions[mission] = id
	return mission, nil
}

func (f *fakePlayers) CompleteMission(_ context.Context, playerID, missionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missions[missionID] != playerID {
		return advisory.ErrNotFound
	}
	delete(f.constraints, playerID)
	delete(f.missions, missionID)
	return nil
}

type mockLiabilities struct{ mock.Mock }

func (m *mockLiabilities) Catalog(ctx context.Context) ([]depreciation.CatalogItem, error) {
	args := m.Called(ctx)
	return args.Get(0).([]depreciation.CatalogItem), args.Error(1)
}

func (m *mockLiabilities) Holdings(ctx context.Context, playerID uuid.UUID) ([]depreciation.Holding, error) {
	args := m.Called(ctx, playerID)
	return args.Get(0).([]depreciation.Holding), args.Error(1)
}

func (m *mockLiabilities) Purchase(ctx context.Context, in depreciation.PurchaseInput) (depreciation.Holding, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(depreciation.Holding), args.Error(1)
}

func (m *mockLiabilities) Preview(ctx context.Context, id uuid.UUID) (depreciation.Preview, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(depreciation.Preview), args.Error(1)
}

func (m *mockLiabilities) Sell(ctx context.Context, in depreciation.SellInput) (depreciation.SaleResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(depreciation.SaleResult), args.Error(1)
}

type mockAdvisor struct{ mock.Mock }

func (m *mockAdvisor) AnalyzePlayer(ctx context.Context, id uuid.UUID) (advisory.Metrics, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(advisory.Metrics), args.Error(1)
}

func (m *mockAdvisor) SafeMessages(ctx context.Context, id uuid.UUID) ([]advisory.Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]advisory.Message), args.Error(1)
}

func (m *mockAdvisor) Stats(ctx context.Context, id uuid.UUID) (advisory.Stats, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(advisory.Stats), args.Error(1)
}

func (m *mockAdvisor) MarkRead(ctx context.Context, playerID, id uuid.UUID) (advisory.Interaction, error) {
	args := m.Called(ctx, playerID, id)
	return args.Get(0).(advisory.Interaction), args.Error(1)
}

func (m *mockAdvisor) MarkAdviceFollowed(ctx context.Context, playerID, id uuid.UUID) (advisory.Interaction, error) {
	args := m.Called(ctx, playerID, id)
	return args.Get(0).(advisory.Interaction), args.Error(1)
}

func (m *mockAdvisor) CheckRealTime(ctx context.Context, playerID uuid.UUID, action string, data advisory.ActionData) *advisory.Message {
	args := m.Called(ctx, playerID, action, data)
	msg, _ := args.Get(0).(*advisory.Message)
	return msg
}

var errBoom = errors.New("boom")
