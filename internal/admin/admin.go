// Package admin is the back-office surface: reviewing applications,
// approving and suspending users and moving orders through fulfilment.
package admin

import (
	"context"
	stderrors "errors"
	"strings"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/common/metrics"
	"vanu-marketplace/internal/models"
	"vanu-marketplace/internal/notify"
	"vanu-marketplace/internal/store/documents"
	"vanu-marketplace/internal/store/feed"
	"vanu-marketplace/internal/store/search"
)

type Store interface {
	Query(ctx context.Context, q documents.Query) ([]documents.Document, error)
	Get(ctx context.Context, collection, id string, out interface{}) error
	Merge(ctx context.Context, collection, id string, fields map[string]interface{}) error
	AppendAudit(ctx context.Context, eventType, resourceType, resourceID string, details map[string]interface{})
}

type Subscriber interface {
	Subscribe(ctx context.Context, q documents.Query, fn func([]documents.Document)) (feed.Unsubscriber, error)
}

type Searcher interface {
	SearchApplications(ctx context.Context, collection, term string, size int) ([]search.Hit, error)
}

type Notifier interface {
	SendEmail(ctx context.Context, msg models.EmailMessage) error
}

// Service implements the admin operations. Live and Search may be nil.
type Service struct {
	store    Store
	live     Subscriber
	search   Searcher
	notifier Notifier
	logger   logger.Logger
}

func NewService(store Store, live Subscriber, searcher Searcher, notifier Notifier, log logger.Logger) *Service {
	return &Service{
		store:    store,
		live:     live,
		search:   searcher,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"component": "admin"}),
	}
}

// ==========================
// Applications
// ==========================

func applicationsQuery(collection string) (documents.Query, error) {
	if !models.IsApplicationCollection(collection) {
		return documents.Query{}, errors.NewValidationError("unknown application collection: " + collection)
	}
	return documents.Query{
		Collection:  collection,
		OrderBy:     models.FieldSubmittedAt,
		OrderByTime: true,
		Desc:        true,
	}, nil
}

// ListApplications returns the applications of collection, newest first.
func (s *Service) ListApplications(ctx context.Context, collection string) ([]map[string]interface{}, error) {
	q, err := applicationsQuery(collection)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return toMaps(docs)
}

// SubscribeApplications calls fn with the current applications and again on every change.
func (s *Service) SubscribeApplications(ctx context.Context, collection string, fn func([]map[string]interface{})) (feed.Unsubscriber, error) {
	q, err := applicationsQuery(collection)
	if err != nil {
		return nil, err
	}
	return s.subscribe(ctx, q, fn)
}

// SearchApplications runs a text search within collection. An empty term lists everything.
func (s *Service) SearchApplications(ctx context.Context, collection, term string) ([]map[string]interface{}, error) {
	term = strings.TrimSpace(term)
	if term == "" || s.search == nil {
		return s.ListApplications(ctx, collection)
	}
	if !models.IsApplicationCollection(collection) {
		return nil, errors.NewValidationError("unknown application collection: " + collection)
	}
	hits, err := s.search.SearchApplications(ctx, collection, term, 50)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(hits))
	for _, h := range hits {
		m := h.Source
		if m == nil {
			m = map[string]interface{}{}
		}
		m["id"] = strings.TrimPrefix(h.ID, collection+":")
		out = append(out, m)
	}
	return out, nil
}

// ==========================
// Users
// ==========================

func usersQuery() documents.Query {
	return documents.Query{
		Collection:  models.CollectionUsers,
		OrderBy:     "createdAt",
		OrderByTime: true,
		Desc:        true,
	}
}

// ListUsers returns profiles newest first, filtered case-insensitively on
// full name or email.
func (s *Service) ListUsers(ctx context.Context, term string) ([]models.UserProfile, error) {
	docs, err := s.store.Query(ctx, usersQuery())
	if err != nil {
		return nil, err
	}
	users, err := decodeUsers(docs)
	if err != nil {
		return nil, err
	}
	return FilterUsers(users, term), nil
}

func (s *Service) SubscribeUsers(ctx context.Context, fn func([]models.UserProfile)) (feed.Unsubscriber, error) {
	if s.live == nil {
		return nil, errors.NewInvalidStateError("live updates are not configured")
	}
	return s.live.Subscribe(ctx, usersQuery(), func(docs []documents.Document) {
		users, err := decodeUsers(docs)
		if err != nil {
			s.logger.Warn("user snapshot decode failed", map[string]interface{}{"error": err})
			return
		}
		fn(users)
	})
}

func FilterUsers(users []models.UserProfile, term string) []models.UserProfile {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return users
	}
	out := make([]models.UserProfile, 0, len(users))
	for _, u := range users {
		name := strings.ToLower(u.FirstName + " " + u.LastName)
		if strings.Contains(name, term) || strings.Contains(strings.ToLower(u.Email), term) {
			out = append(out, u)
		}
	}
	return out
}

func validUserStatus(status string) bool {
	for _, s := range models.UserStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *Service) UpdateUserStatus(ctx context.Context, userID, status string) error {
	if !validUserStatus(status) {
		return errors.NewInvalidStatusError(status)
	}
	if err := s.store.Merge(ctx, models.CollectionUsers, userID, map[string]interface{}{"status": status}); err != nil {
		return err
	}
	s.store.AppendAudit(ctx, "user_status_changed", "user", userID, map[string]interface{}{"status": status})
	s.logger.Info("user status updated", map[string]interface{}{"userId": userID, "status": status})
	return nil
}

func (s *Service) ApproveUser(ctx context.Context, userID string) error {
	return s.UpdateUserStatus(ctx, userID, models.UserStatusActive)
}

// ==========================
// Orders
// ==========================

// StatusFilterAll disables status filtering in ListOrders.
const StatusFilterAll = "All"

func ordersQuery() documents.Query {
	return documents.Query{
		Collection:  models.CollectionOrders,
		OrderBy:     "date",
		OrderByTime: true,
		Desc:        true,
	}
}

// ListOrders returns orders newest first, filtered by status and by a
// term matched against id, customer name and email.
func (s *Service) ListOrders(ctx context.Context, status, term string) ([]models.Order, error) {
	docs, err := s.store.Query(ctx, ordersQuery())
	if err != nil {
		return nil, err
	}
	orders, err := decodeOrders(docs)
	if err != nil {
		return nil, err
	}
	return FilterOrders(orders, status, term), nil
}

func (s *Service) SubscribeOrders(ctx context.Context, fn func([]models.Order)) (feed.Unsubscriber, error) {
	if s.live == nil {
		return nil, errors.NewInvalidStateError("live updates are not configured")
	}
	return s.live.Subscribe(ctx, ordersQuery(), func(docs []documents.Document) {
		orders, err := decodeOrders(docs)
		if err != nil {
			s.logger.Warn("order snapshot decode failed", map[string]interface{}{"error": err})
			return
		}
		fn(orders)
	})
}

func FilterOrders(orders []models.Order, status, term string) []models.Order {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if status != "" && status != StatusFilterAll && o.Status != status {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(o.ID), term) &&
			!strings.Contains(strings.ToLower(o.CustomerName), term) &&
			!strings.Contains(strings.ToLower(o.Email), term) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func validOrderStatus(status string) bool {
	for _, s := range models.OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// UpdateOrderStatus moves an order to status and emails the customer when
// the order carries an address. Email failures are logged only.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	if !validOrderStatus(status) {
		return errors.NewInvalidStatusError(status)
	}

	var order models.Order
	if err := s.store.Get(ctx, models.CollectionOrders, orderID, &order); err != nil {
		return err
	}
	order.ID = orderID

	if err := s.store.Merge(ctx, models.CollectionOrders, orderID, map[string]interface{}{"status": status}); err != nil {
		return err
	}
	metrics.OrderStatusUpdates.WithLabelValues(status).Inc()
	s.store.AppendAudit(ctx, "order_status_changed", "order", orderID, map[string]interface{}{
		"from": order.Status,
		"to":   status,
	})

	if order.Email != "" && s.notifier != nil {
		err := s.notifier.SendEmail(ctx, notify.OrderStatusEmail(order, status))
		switch {
		case err == nil:
		case stderrors.Is(err, notify.ErrChannelDisabled):
			s.logger.Debug("order email skipped, email disabled", map[string]interface{}{"orderId": orderID})
		default:
			s.logger.Error("order status email failed", map[string]interface{}{
				"orderId": orderID,
				"error":   err,
			})
		}
	}
	return nil
}

// ==========================
// Helpers
// ==========================

func (s *Service) subscribe(ctx context.Context, q documents.Query, fn func([]map[string]interface{})) (feed.Unsubscriber, error) {
	if s.live == nil {
		return nil, errors.NewInvalidStateError("live updates are not configured")
	}
	return s.live.Subscribe(ctx, q, func(docs []documents.Document) {
		maps, err := toMaps(docs)
		if err != nil {
			s.logger.Warn("snapshot decode failed", map[string]interface{}{"collection": q.Collection, "error": err})
			return
		}
		fn(maps)
	})
}

func toMaps(docs []documents.Document) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		m, err := d.Map()
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("decode "+d.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeUsers(docs []documents.Document) ([]models.UserProfile, error) {
	users, err := documents.DecodeAll(docs, func(u *models.UserProfile, id string) { u.ID = id })
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("decode users", err)
	}
	return users, nil
}

func decodeOrders(docs []documents.Document) ([]models.Order, error) {
	orders, err := documents.DecodeAll(docs, func(o *models.Order, id string) { o.ID = id })
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("decode orders", err)
	}
	return orders, nil
}
