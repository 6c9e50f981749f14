package activatestockist

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type mockStore struct {
	profiles map[string]models.UserProfile
	merged   map[string]map[string]interface{}
	audits   []string
	mergeErr error
}

func newMockStore() *mockStore {
	return &mockStore{profiles: map[string]models.UserProfile{}, merged: map[string]map[string]interface{}{}}
}

func (m *mockStore) Get(_ context.Context, collection, id string, out interface{}) error {
	p, ok := m.profiles[id]
	if !ok {
		return errors.NewNotFoundError(collection, id)
	}
	raw, _ := json.Marshal(p)
	return json.Unmarshal(raw, out)
}

func (m *mockStore) Merge(_ context.Context, _, id string, fields map[string]interface{}) error {
	if m.mergeErr != nil {
		return m.mergeErr
	}
	m.merged[id] = fields
	return nil
}

func (m *mockStore) AppendAudit(_ context.Context, eventType, _, resourceID string, _ map[string]interface{}) {
	m.audits = append(m.audits, eventType+":"+resourceID)
}

func newTestHandler(t *testing.T, store *mockStore) *Handler {
	h := NewHandler(LoadConfig(0), store, logger.NewTestLogger(t))
	h.now = func() time.Time { return time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC) }
	return h
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute_ActivatesPendingStockist(t *testing.T) {
	store := newMockStore()
	store.profiles["u-1"] = models.UserProfile{Status: models.UserStatusPendingApproval, Roles: []string{models.RoleStockist}}

	out, err := newTestHandler(t, store).Execute(context.Background(), &Input{UserID: " u-1 "})
	require.NoError(t, err)

	assert.Equal(t, "u-1", out.UserID)
	assert.Equal(t, models.UserStatusActive, out.Status)
	assert.Equal(t, "2025-05-02T10:00:00Z", out.ActivatedAt)
	assert.Equal(t, models.UserStatusActive, store.merged["u-1"]["status"])
	assert.Equal(t, []string{"stockist_activated:u-1"}, store.audits)
}

func TestHandler_Execute_AlreadyActiveIsNoop(t *testing.T) {
	store := newMockStore()
	store.profiles["u-1"] = models.UserProfile{Status: models.UserStatusActive}

	out, err := newTestHandler(t, store).Execute(context.Background(), &Input{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusActive, out.Status)
	assert.Empty(t, store.merged)
	assert.Empty(t, store.audits)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    *Input
		setup    func(*mockStore)
		wantCode errors.ErrorCode
		wantBPMN string
	}{
		{name: "missing userId", input: &Input{}, wantCode: errors.ErrCodeValidation, wantBPMN: "INVALID_JOB_VARIABLES"},
		{name: "unknown user", input: &Input{UserID: "ghost"}, wantCode: errors.ErrCodeNotFound, wantBPMN: "STOCKIST_NOT_FOUND"},
		{
			name:  "store failure",
			input: &Input{UserID: "u-1"},
			setup: func(m *mockStore) {
				m.profiles["u-1"] = models.UserProfile{Status: models.UserStatusPendingApproval}
				m.mergeErr = errors.NewPersistenceError(models.CollectionUsers, stderrors.New("conn reset"))
			},
			wantCode: errors.ErrCodePersistence,
			wantBPMN: "PERSISTENCE_ERROR",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			if tt.setup != nil {
				tt.setup(store)
			}
			_, err := newTestHandler(t, store).Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.AsStandardError(err).Code)
			assert.Equal(t, tt.wantBPMN, errors.ConvertToBPMNError(errors.AsStandardError(err)).Code)
		})
	}
}
