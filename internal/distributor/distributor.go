// Package distributor serves approved stockists: sign-in, their orders,
// checkout and profile maintenance.
package distributor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vanu-marketplace/internal/common/auth"
	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"
	"vanu-marketplace/internal/store/documents"

	"github.com/google/uuid"
)

type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*auth.TokenResponse, error)
	ValidateToken(ctx context.Context, token string) (*auth.TokenInfo, error)
	Logout(ctx context.Context, refreshToken string) error
}

type Store interface {
	Query(ctx context.Context, q documents.Query) ([]documents.Document, error)
	Get(ctx context.Context, collection, id string, out interface{}) error
	Set(ctx context.Context, collection, id string, data interface{}) error
	Merge(ctx context.Context, collection, id string, fields map[string]interface{}) error
	AppendAudit(ctx context.Context, eventType, resourceType, resourceID string, details map[string]interface{})
}

type Uploader interface {
	Upload(ctx context.Context, data []byte, objectPath string) (string, error)
}

// Directory mirrors profile names into the identity service.
type Directory interface {
	SyncName(ctx context.Context, userID, firstName, lastName string) error
}

type Deps struct {
	Auth      Authenticator
	Store     Store
	Uploader  Uploader
	Directory Directory
	Logger    logger.Logger
}

type Service struct {
	auth      Authenticator
	store     Store
	uploader  Uploader
	directory Directory
	logger    logger.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(deps Deps) *Service {
	return &Service{
		auth:      deps.Auth,
		store:     deps.Store,
		uploader:  deps.Uploader,
		directory: deps.Directory,
		logger:    deps.Logger.WithFields(map[string]interface{}{"component": "distributor"}),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// ==========================
// Session
// ==========================

type Session struct {
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken,omitempty"`
	ExpiresIn    int                `json:"expiresIn"`
	Profile      models.UserProfile `json:"profile"`
}

// Login signs a stockist in. Any account that may not use the distributor
// area is signed straight back out.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	tok, err := s.auth.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}

	info, err := s.auth.ValidateToken(ctx, tok.AccessToken)
	if err != nil {
		s.logout(ctx, tok)
		return nil, err
	}

	profile, err := s.gate(ctx, info.Sub)
	if err != nil {
		s.logout(ctx, tok)
		s.logger.Info("distributor login refused", map[string]interface{}{
			"userId": info.Sub,
			"status": profile.Status,
			"code":   string(errors.AsStandardError(err).Code),
		})
		return nil, err
	}

	return &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		Profile:      profile,
	}, nil
}

// Authorize applies the login checks to the subject of an issued token.
// The distributor routes call it on every request.
func (s *Service) Authorize(ctx context.Context, uid string) error {
	_, err := s.gate(ctx, uid)
	return err
}

// gate loads the profile for uid and refuses anyone who may not use the
// distributor area. The profile is returned even on refusal when it exists.
func (s *Service) gate(ctx context.Context, uid string) (models.UserProfile, error) {
	var profile models.UserProfile
	if uid == "" {
		return profile, errors.NewAccessDeniedError("this login is for distributors only")
	}
	if err := s.store.Get(ctx, models.CollectionUsers, uid, &profile); err != nil {
		if errors.AsStandardError(err).Code == errors.ErrCodeNotFound {
			return profile, errors.NewAccessDeniedError("this login is for distributors only")
		}
		return profile, err
	}
	profile.ID = uid

	if !profile.HasRole(models.RoleStockist) {
		return profile, errors.NewAccessDeniedError("this login is for distributors only")
	}
	switch profile.Status {
	case models.UserStatusPendingApproval:
		return profile, errors.NewAccountPendingApprovalError()
	case models.UserStatusSuspended:
		return profile, errors.NewAccountSuspendedError()
	}
	return profile, nil
}

func (s *Service) logout(ctx context.Context, tok *auth.TokenResponse) {
	if tok.RefreshToken == "" {
		return
	}
	if err := s.auth.Logout(ctx, tok.RefreshToken); err != nil {
		s.logger.Warn("logout after refused login failed", map[string]interface{}{"error": err})
	}
}

// ==========================
// Orders
// ==========================

func ordersOf(uid string) documents.Query {
	return documents.Query{
		Collection:  models.CollectionOrders,
		Where:       []documents.Filter{{Field: "userId", Op: documents.OpEqual, Value: uid}},
		OrderBy:     "date",
		OrderByTime: true,
		Desc:        true,
	}
}

// Orders returns the caller's orders, newest first.
func (s *Service) Orders(ctx context.Context, uid string) ([]models.Order, error) {
	docs, err := s.store.Query(ctx, ordersOf(uid))
	if err != nil {
		return nil, err
	}
	orders, err := documents.DecodeAll(docs, func(o *models.Order, id string) { o.ID = id })
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("decode orders", err)
	}
	return orders, nil
}

// RequestCancellation flags an order for admin review.
func (s *Service) RequestCancellation(ctx context.Context, uid, orderID string) error {
	var order models.Order
	if err := s.store.Get(ctx, models.CollectionOrders, orderID, &order); err != nil {
		return err
	}
	if order.UserID != uid {
		return errors.NewNotFoundError("order", orderID)
	}
	if !order.Cancellable() {
		return errors.NewOrderNotCancellableError(orderID, order.Status)
	}
	if err := s.store.Merge(ctx, models.CollectionOrders, orderID, map[string]interface{}{
		"status": models.OrderStatusCancellationRequested,
	}); err != nil {
		return err
	}
	s.store.AppendAudit(ctx, "order_cancellation_requested", "order", orderID, map[string]interface{}{"userId": uid})
	return nil
}

type Cart struct {
	Items           []models.OrderItem     `json:"items"`
	Shipping        float64                `json:"shipping"`
	Fees            []models.Fee           `json:"fees,omitempty"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
}

// PlaceOrder turns a cart into a Pending order.
func (s *Service) PlaceOrder(ctx context.Context, uid string, cart Cart) (*models.Order, error) {
	if len(cart.Items) == 0 {
		return nil, errors.NewValidationError("cart is empty")
	}
	if cart.Shipping < 0 {
		return nil, errors.NewValidationError("shipping must not be negative")
	}

	var subtotal float64
	for _, it := range cart.Items {
		if it.Quantity <= 0 || it.Price < 0 {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid quantity or price for item %q", it.ID))
		}
		subtotal += it.Price * float64(it.Quantity)
	}
	total := subtotal + cart.Shipping
	for _, f := range cart.Fees {
		total += f.Value
	}

	var profile models.UserProfile
	if err := s.store.Get(ctx, models.CollectionUsers, uid, &profile); err != nil {
		return nil, err
	}

	customer := strings.TrimSpace(cart.ShippingAddress.FirstName + " " + cart.ShippingAddress.LastName)
	if customer == "" {
		customer = profile.FullName()
	}

	order := models.Order{
		ID:              s.newID(),
		UserID:          uid,
		CustomerName:    customer,
		Email:           profile.Email,
		Subtotal:        subtotal,
		Shipping:        cart.Shipping,
		Fees:            cart.Fees,
		Total:           total,
		Status:          models.OrderStatusPending,
		Date:            s.now().UTC(),
		Items:           cart.Items,
		ShippingAddress: cart.ShippingAddress,
	}
	if err := s.store.Set(ctx, models.CollectionOrders, order.ID, order); err != nil {
		return nil, err
	}
	s.store.AppendAudit(ctx, "order_placed", "order", order.ID, map[string]interface{}{
		"userId": uid,
		"total":  total,
	})
	s.logger.Info("order placed", map[string]interface{}{"orderId": order.ID, "userId": uid, "total": total})
	return &order, nil
}

// ==========================
// Profile
// ==========================

func (s *Service) Profile(ctx context.Context, uid string) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := s.store.Get(ctx, models.CollectionUsers, uid, &p); err != nil {
		return nil, err
	}
	p.ID = uid
	return &p, nil
}

// UpdateProfile applies the non-nil fields of update and, when avatar is
// non-empty, replaces the avatar stored at avatars/<uid>.
func (s *Service) UpdateProfile(ctx context.Context, uid string, update models.ProfileUpdate, avatar []byte) (*models.UserProfile, error) {
	current, err := s.Profile(ctx, uid)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if update.FirstName != nil {
		current.FirstName = strings.TrimSpace(*update.FirstName)
		fields["firstName"] = current.FirstName
	}
	if update.LastName != nil {
		current.LastName = strings.TrimSpace(*update.LastName)
		fields["lastName"] = current.LastName
	}
	if update.Phone != nil {
		current.Phone = strings.TrimSpace(*update.Phone)
		fields["phone"] = current.Phone
	}
	if update.Gender != nil {
		current.Gender = *update.Gender
		fields["gender"] = current.Gender
	}
	if current.FirstName == "" {
		return nil, errors.NewValidationError("firstName must not be empty")
	}

	if len(avatar) > 0 {
		url, err := s.uploader.Upload(ctx, avatar, "avatars/"+uid)
		if err != nil {
			return nil, err
		}
		current.AvatarURL = url
		fields["avatarUrl"] = url
	}

	if len(fields) == 0 {
		return current, nil
	}
	if err := s.store.Merge(ctx, models.CollectionUsers, uid, fields); err != nil {
		return nil, err
	}

	if s.directory != nil && (update.FirstName != nil || update.LastName != nil) {
		if err := s.directory.SyncName(ctx, uid, current.FirstName, current.LastName); err != nil {
			s.logger.Warn("identity name sync failed", map[string]interface{}{"userId": uid, "error": err})
		}
	}
	return current, nil
}

// KeycloakDirectory pushes name changes to Keycloak through the shared
// service-account session.
type KeycloakDirectory struct {
	client *auth.KeycloakClient
}

func NewKeycloakDirectory(client *auth.KeycloakClient) *KeycloakDirectory {
	return &KeycloakDirectory{client: client}
}

func (d *KeycloakDirectory) SyncName(ctx context.Context, userID, firstName, lastName string) error {
	session, err := d.client.SharedSession(ctx)
	if err != nil {
		return err
	}
	defer session.Release(ctx)

	user, err := session.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	user.FirstName = firstName
	user.LastName = lastName
	return session.UpdateUser(ctx, user)
}
