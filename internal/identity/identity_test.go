package identity

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"vanu-marketplace/internal/common/auth"
	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type fakeAuthContext struct {
	createErr error
	deleteErr error
	created   []*auth.User
	passwords []string
	deleted   []string
	releases  int
}

func (f *fakeAuthContext) CreateUser(_ context.Context, u *auth.User, password string) (*auth.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, u)
	f.passwords = append(f.passwords, password)
	out := *u
	out.ID = "kc-1"
	return &out, nil
}

func (f *fakeAuthContext) DeleteUser(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeAuthContext) Release(context.Context) error {
	f.releases++
	return nil
}

type fakeProfiles struct {
	setErr    error
	deleteErr error
	docs      map[string]interface{}
	deleted   []string
}

func (f *fakeProfiles) Set(_ context.Context, collection, id string, data interface{}) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.docs == nil {
		f.docs = map[string]interface{}{}
	}
	f.docs[collection+"/"+id] = data
	return nil
}

func (f *fakeProfiles) Delete(_ context.Context, collection, id string) error {
	f.deleted = append(f.deleted, collection+"/"+id)
	return f.deleteErr
}

func newTestProvisioner(t *testing.T, profiles ProfileStore) *Provisioner {
	p := NewProvisioner(profiles, logger.NewTestLogger(t))
	p.now = func() time.Time { return time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) }
	return p
}

// ==========================
// Tests
// ==========================

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Asha Devi", "Asha", "Devi"},
		{"Ram Prasad Yadav", "Ram", "Prasad Yadav"},
		{"Mono", "Mono", ""},
		{"  Padded Name ", "Padded", "Name"},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestProvision_WritesPendingProfile(t *testing.T) {
	ac := &fakeAuthContext{}
	profiles := &fakeProfiles{}
	p := newTestProvisioner(t, profiles)

	ident, err := p.Provision(context.Background(), ac, Request{
		Email:         "asha@vanu.in",
		Password:      "p4ssword",
		ApplicantName: "Asha Devi",
		Phone:         "9876543210",
		RoleTag:       models.RoleStockist,
	})
	require.NoError(t, err)
	assert.Equal(t, "kc-1", ident.ID)

	require.Len(t, ac.created, 1)
	assert.Equal(t, "asha@vanu.in", ac.created[0].Email)
	assert.Equal(t, "p4ssword", ac.passwords[0])

	profile := profiles.docs["users/kc-1"].(models.UserProfile)
	assert.Equal(t, "Asha", profile.FirstName)
	assert.Equal(t, "Devi", profile.LastName)
	assert.Equal(t, "9876543210", profile.Phone)
	assert.Equal(t, models.UserStatusPendingApproval, profile.Status)
	assert.Equal(t, []string{models.RoleStockist}, profile.Roles)
	assert.Equal(t, "", profile.AvatarURL)
	assert.Equal(t, 2025, profile.CreatedAt.Year())
	assert.Equal(t, 0, ac.releases, "provisioner never releases the caller's context")
}

func TestProvision_DuplicateIdentityPassesThrough(t *testing.T) {
	ac := &fakeAuthContext{createErr: errors.NewDuplicateIdentityError("asha@vanu.in")}
	profiles := &fakeProfiles{}
	p := newTestProvisioner(t, profiles)

	_, err := p.Provision(context.Background(), ac, Request{Email: "asha@vanu.in"})
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateIdentity))
	assert.Empty(t, profiles.docs)
}

func TestProvision_OtherFailuresAreProvisioningErrors(t *testing.T) {
	ac := &fakeAuthContext{createErr: stderrors.New("keycloak 500")}
	p := newTestProvisioner(t, &fakeProfiles{})

	_, err := p.Provision(context.Background(), ac, Request{Email: "a@b.com"})
	assert.True(t, stderrors.Is(err, errors.ErrProvisioning))
}

func TestProvision_ProfileFailureReturnsCreatedID(t *testing.T) {
	ac := &fakeAuthContext{}
	p := newTestProvisioner(t, &fakeProfiles{setErr: stderrors.New("db down")})

	ident, err := p.Provision(context.Background(), ac, Request{Email: "a@b.com", ApplicantName: "A B"})
	assert.True(t, stderrors.Is(err, errors.ErrProvisioning))
	assert.Equal(t, "kc-1", ident.ID)
}

func TestCompensate(t *testing.T) {
	ac := &fakeAuthContext{}
	profiles := &fakeProfiles{}
	p := newTestProvisioner(t, profiles)

	require.NoError(t, p.Compensate(context.Background(), ac, "kc-1"))
	assert.Equal(t, []string{"users/kc-1"}, profiles.deleted)
	assert.Equal(t, []string{"kc-1"}, ac.deleted)
}

func TestCompensate_ReportsBothFailures(t *testing.T) {
	profileErr := stderrors.New("db down")
	userErr := stderrors.New("keycloak down")
	ac := &fakeAuthContext{deleteErr: userErr}
	p := newTestProvisioner(t, &fakeProfiles{deleteErr: profileErr})

	err := p.Compensate(context.Background(), ac, "kc-1")
	assert.ErrorIs(t, err, profileErr)
	assert.ErrorIs(t, err, userErr)
	assert.Equal(t, []string{"kc-1"}, ac.deleted, "identity deletion is still attempted")
}
