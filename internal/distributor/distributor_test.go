package distributor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"vanu-marketplace/internal/common/auth"
	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"
	"vanu-marketplace/internal/store/documents"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type fakeAuth struct {
	sub       string
	signInErr error
	logouts   int
}

func (f *fakeAuth) SignIn(_ context.Context, _, password string) (*auth.TokenResponse, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return &auth.TokenResponse{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 300}, nil
}

func (f *fakeAuth) ValidateToken(_ context.Context, _ string) (*auth.TokenInfo, error) {
	return &auth.TokenInfo{Active: true, Sub: f.sub}, nil
}

func (f *fakeAuth) Logout(_ context.Context, _ string) error {
	f.logouts++
	return nil
}

type memStore struct {
	mu     sync.Mutex
	docs   map[string]map[string][]byte
	audits []string
	lastQ  documents.Query
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]map[string][]byte{}}
}

func (m *memStore) put(t *testing.T, collection, id string, v interface{}) {
	t.Helper()
	require.NoError(t, m.Set(context.Background(), collection, id, v))
}

func (m *memStore) Query(_ context.Context, q documents.Query) ([]documents.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQ = q
	var out []documents.Document
	for id, raw := range m.docs[q.Collection] {
		out = append(out, documents.Document{ID: id, Data: raw})
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, collection, id string, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[collection][id]
	if !ok {
		return errors.NewNotFoundError(collection, id)
	}
	return json.Unmarshal(raw, out)
}

func (m *memStore) Set(_ context.Context, collection, id string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if m.docs[collection] == nil {
		m.docs[collection] = map[string][]byte{}
	}
	m.docs[collection][id] = raw
	return nil
}

func (m *memStore) Merge(_ context.Context, collection, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[collection][id]
	if !ok {
		return errors.NewNotFoundError(collection, id)
	}
	doc := map[string]interface{}{}
	_ = json.Unmarshal(raw, &doc)
	for k, v := range fields {
		doc[k] = v
	}
	m.docs[collection][id], _ = json.Marshal(doc)
	return nil
}

func (m *memStore) AppendAudit(_ context.Context, eventType, _, resourceID string, _ map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, eventType+":"+resourceID)
}

type fakeUploader struct {
	paths []string
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, _ []byte, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, path)
	return "https://cdn.test/" + path, nil
}

type fakeDirectory struct {
	first, last string
	calls       int
}

func (f *fakeDirectory) SyncName(_ context.Context, _, first, last string) error {
	f.calls++
	f.first, f.last = first, last
	return nil
}

type fixture struct {
	svc      *Service
	auth     *fakeAuth
	store    *memStore
	uploader *fakeUploader
	dir      *fakeDirectory
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		auth:     &fakeAuth{sub: "u-1"},
		store:    newMemStore(),
		uploader: &fakeUploader{},
		dir:      &fakeDirectory{},
	}
	f.svc = NewService(Deps{
		Auth:      f.auth,
		Store:     f.store,
		Uploader:  f.uploader,
		Directory: f.dir,
		Logger:    logger.NewTestLogger(t),
	})
	f.svc.newID = func() string { return "order-0001" }
	f.svc.now = func() time.Time { return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return f
}

func stockist(status string) models.UserProfile {
	return models.UserProfile{
		FirstName: "Asha",
		LastName:  "Devi",
		Email:     "asha@vanu.in",
		Status:    status,
		Roles:     []string{models.RoleStockist},
	}
}

// ==========================
// Login
// ==========================

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		profile    *models.UserProfile
		wantCode   errors.ErrorCode
		wantLogout bool
	}{
		{"active stockist", ptr(stockist(models.UserStatusActive)), "", false},
		{"pending approval", ptr(stockist(models.UserStatusPendingApproval)), errors.ErrCodeAccountPendingApproval, true},
		{"suspended", ptr(stockist(models.UserStatusSuspended)), errors.ErrCodeAccountSuspended, true},
		{"not a stockist", &models.UserProfile{Status: models.UserStatusActive, Roles: []string{"customer"}}, errors.ErrCodeAccessDenied, true},
		{"no profile", nil, errors.ErrCodeAccessDenied, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.profile != nil {
				f.store.put(t, models.CollectionUsers, "u-1", *tt.profile)
			}

			session, err := f.svc.Login(context.Background(), " asha@vanu.in ", "pw")
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "at", session.AccessToken)
				assert.Equal(t, "u-1", session.Profile.ID)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.AsStandardError(err).Code)
			}
			assert.Equal(t, tt.wantLogout, f.auth.logouts == 1)
		})
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newFixture(t)
	f.auth.signInErr = errors.NewInvalidCredentialsError(stderrors.New("invalid_grant"))

	_, err := f.svc.Login(context.Background(), "a@b.c", "nope")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidCredentials))
	assert.Zero(t, f.auth.logouts)
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		uid      string
		profile  *models.UserProfile
		wantCode errors.ErrorCode
	}{
		{"active stockist", "u-1", ptr(stockist(models.UserStatusActive)), ""},
		{"pending approval", "u-1", ptr(stockist(models.UserStatusPendingApproval)), errors.ErrCodeAccountPendingApproval},
		{"suspended", "u-1", ptr(stockist(models.UserStatusSuspended)), errors.ErrCodeAccountSuspended},
		{"customer", "c-1", &models.UserProfile{Status: models.UserStatusActive, Roles: []string{"customer"}}, errors.ErrCodeAccessDenied},
		{"no profile", "ghost", nil, errors.ErrCodeAccessDenied},
		{"no subject", "", nil, errors.ErrCodeAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.profile != nil {
				f.store.put(t, models.CollectionUsers, tt.uid, *tt.profile)
			}

			err := f.svc.Authorize(context.Background(), tt.uid)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.AsStandardError(err).Code)
			assert.Zero(t, f.auth.logouts)
		})
	}
}

func ptr[T any](v T) *T { return &v }

// ==========================
// Orders
// ==========================

func TestOrders_QueriesOwnOrdersNewestFirst(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Orders(context.Background(), "u-1")
	require.NoError(t, err)

	require.Len(t, f.store.lastQ.Where, 1)
	assert.Equal(t, "userId", f.store.lastQ.Where[0].Field)
	assert.Equal(t, "u-1", f.store.lastQ.Where[0].Value)
	assert.Equal(t, "date", f.store.lastQ.OrderBy)
	assert.True(t, f.store.lastQ.Desc)
}

func TestRequestCancellation(t *testing.T) {
	tests := []struct {
		name     string
		owner    string
		status   string
		wantCode errors.ErrorCode
	}{
		{"pending", "u-1", models.OrderStatusPending, ""},
		{"accepted", "u-1", models.OrderStatusAccepted, ""},
		{"shipped", "u-1", models.OrderStatusShipped, errors.ErrCodeOrderNotCancellable},
		{"already requested", "u-1", models.OrderStatusCancellationRequested, errors.ErrCodeOrderNotCancellable},
		{"someone else's", "u-2", models.OrderStatusPending, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.put(t, models.CollectionOrders, "o1", models.Order{UserID: tt.owner, Status: tt.status})

			err := f.svc.RequestCancellation(context.Background(), "u-1", "o1")
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errors.AsStandardError(err).Code)
				return
			}
			require.NoError(t, err)
			var o models.Order
			require.NoError(t, f.store.Get(context.Background(), models.CollectionOrders, "o1", &o))
			assert.Equal(t, models.OrderStatusCancellationRequested, o.Status)
		})
	}
}

func TestPlaceOrder_Totals(t *testing.T) {
	f := newFixture(t)
	f.store.put(t, models.CollectionUsers, "u-1", stockist(models.UserStatusActive))

	order, err := f.svc.PlaceOrder(context.Background(), "u-1", Cart{
		Items: []models.OrderItem{
			{ID: "p1", Name: "Jaggery", Price: 120, Quantity: 2},
			{ID: "p2", Name: "Honey", Price: 250.5, Quantity: 1},
		},
		Shipping: 40,
		Fees:     []models.Fee{{Name: "Packing", Value: 10}},
	})
	require.NoError(t, err)

	assert.Equal(t, "order-0001", order.ID)
	assert.InDelta(t, 490.5, order.Subtotal, 0.001)
	assert.InDelta(t, 540.5, order.Total, 0.001)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "Asha Devi", order.CustomerName)
	assert.Equal(t, "asha@vanu.in", order.Email)
	assert.Contains(t, f.store.audits, "order_placed:order-0001")
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, "u-1", Cart{})
	assert.True(t, stderrors.Is(err, errors.ErrValidation))

	_, err = f.svc.PlaceOrder(ctx, "u-1", Cart{Items: []models.OrderItem{{ID: "p1", Price: 10, Quantity: 0}}})
	assert.True(t, stderrors.Is(err, errors.ErrValidation))
}

// ==========================
// Dashboard
// ==========================

func TestSummarize(t *testing.T) {
	now := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	orders := []models.Order{
		{ID: "o1", Total: 100, Status: models.OrderStatusPending, Date: time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "o2", Total: 50, Status: models.OrderStatusAccepted, Date: time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC)},
		{ID: "o3", Total: 25, Status: models.OrderStatusDelivered, Date: time.Date(2024, time.December, 5, 0, 0, 0, 0, time.UTC)},
		{ID: "o4", Total: 10, Status: models.OrderStatusRejected, Date: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)},
	}

	d := summarize(orders, now)

	assert.InDelta(t, 185, d.TotalRevenue, 0.001)
	assert.Equal(t, 4, d.TotalOrders)
	assert.Equal(t, 2, d.PendingOrders)
	require.Len(t, d.Monthly, 6)
	assert.Equal(t, "Oct 2024", d.Monthly[0].Month)
	assert.Equal(t, "Dec 2024", d.Monthly[2].Month)
	assert.InDelta(t, 25, d.Monthly[2].Total, 0.001)
	assert.Equal(t, "Mar 2025", d.Monthly[5].Month)
	assert.InDelta(t, 100, d.Monthly[5].Total, 0.001)
	assert.Len(t, d.RecentOrders, 4)
}

// ==========================
// Profile
// ==========================

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	f.store.put(t, models.CollectionUsers, "u-1", stockist(models.UserStatusActive))

	first := " Asha Rani "
	phone := "9000000000"
	p, err := f.svc.UpdateProfile(context.Background(), "u-1", models.ProfileUpdate{FirstName: &first, Phone: &phone}, []byte("\x89PNG"))
	require.NoError(t, err)

	assert.Equal(t, "Asha Rani", p.FirstName)
	assert.Equal(t, "https://cdn.test/avatars/u-1", p.AvatarURL)
	assert.Equal(t, []string{"avatars/u-1"}, f.uploader.paths)
	assert.Equal(t, 1, f.dir.calls)
	assert.Equal(t, "Devi", f.dir.last)

	stored, err := f.svc.Profile(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "9000000000", stored.Phone)
	assert.Equal(t, "https://cdn.test/avatars/u-1", stored.AvatarURL)
}

func TestUpdateProfile_NoNameChangeSkipsSync(t *testing.T) {
	f := newFixture(t)
	f.store.put(t, models.CollectionUsers, "u-1", stockist(models.UserStatusActive))

	gender := "female"
	_, err := f.svc.UpdateProfile(context.Background(), "u-1", models.ProfileUpdate{Gender: &gender}, nil)
	require.NoError(t, err)
	assert.Zero(t, f.dir.calls)
	assert.Empty(t, f.uploader.paths)
}

func TestUpdateProfile_UploadFailure(t *testing.T) {
	f := newFixture(t)
	f.store.put(t, models.CollectionUsers, "u-1", stockist(models.UserStatusActive))
	f.uploader.err = errors.NewUploadError("avatars/u-1", stderrors.New("denied"))

	_, err := f.svc.UpdateProfile(context.Background(), "u-1", models.ProfileUpdate{}, []byte("img"))
	assert.True(t, stderrors.Is(err, errors.ErrUpload))
}
