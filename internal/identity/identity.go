// Package identity creates marketplace identities: an account in the
// identity provider plus the UserProfile document keyed by its id.
package identity

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"vanu-marketplace/internal/common/auth"
	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"
)

// AuthContext is an isolated admin session. Work done through it never
// touches the caller's own signed-in session.
type AuthContext interface {
	CreateUser(ctx context.Context, user *auth.User, password string) (*auth.User, error)
	DeleteUser(ctx context.Context, userID string) error
	Release(ctx context.Context) error
}

// Authority hands out isolated auth contexts.
type Authority interface {
	Acquire(ctx context.Context) (AuthContext, error)
}

// KeycloakAuthority acquires a dedicated service-account session per call.
type KeycloakAuthority struct {
	client *auth.KeycloakClient
}

func NewKeycloakAuthority(client *auth.KeycloakClient) *KeycloakAuthority {
	return &KeycloakAuthority{client: client}
}

func (a *KeycloakAuthority) Acquire(ctx context.Context) (AuthContext, error) {
	session, err := a.client.NewIsolatedSession(ctx)
	if err != nil {
		return nil, errors.NewProvisioningError(err)
	}
	return session, nil
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	Set(ctx context.Context, collection, id string, data interface{}) error
	Delete(ctx context.Context, collection, id string) error
}

// Request describes the identity to create.
type Request struct {
	Email         string
	Password      string
	ApplicantName string
	Phone         string
	Gender        string
	RoleTag       string
}

type Identity struct {
	ID      string
	Profile models.UserProfile
}

type Provisioner struct {
	profiles ProfileStore
	logger   logger.Logger
	now      func() time.Time
}

func NewProvisioner(profiles ProfileStore, log logger.Logger) *Provisioner {
	return &Provisioner{
		profiles: profiles,
		logger:   log.WithFields(map[string]interface{}{"component": "identity-provisioner"}),
		now:      time.Now,
	}
}

// SplitName splits a full name on its first space.
func SplitName(full string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(full), " ")
	return first, last
}

// Provision creates the identity and its profile inside ac. When the
// identity was created but the profile write failed, the returned Identity
// carries the new id so the caller can compensate.
func (p *Provisioner) Provision(ctx context.Context, ac AuthContext, req Request) (Identity, error) {
	first, last := SplitName(req.ApplicantName)

	user, err := ac.CreateUser(ctx, &auth.User{
		Email:     req.Email,
		FirstName: first,
		LastName:  last,
		Enabled:   true,
	}, req.Password)
	if err != nil {
		if stderrors.Is(err, errors.ErrDuplicateIdentity) {
			return Identity{}, err
		}
		return Identity{}, errors.NewProvisioningError(err)
	}

	profile := models.UserProfile{
		FirstName: first,
		LastName:  last,
		Email:     req.Email,
		Phone:     req.Phone,
		Gender:    req.Gender,
		Status:    models.UserStatusPendingApproval,
		Roles:     []string{req.RoleTag},
		AvatarURL: "",
		CreatedAt: p.now().UTC(),
	}
	ident := Identity{ID: user.ID, Profile: profile}

	if err := p.profiles.Set(ctx, models.CollectionUsers, user.ID, profile); err != nil {
		return ident, errors.NewProvisioningError(err)
	}

	p.logger.Info("identity provisioned", map[string]interface{}{
		"userId": user.ID,
		"role":   req.RoleTag,
	})
	profile.ID = user.ID
	ident.Profile = profile
	return ident, nil
}

// Compensate removes the profile and identity created for id.
func (p *Provisioner) Compensate(ctx context.Context, ac AuthContext, id string) error {
	var errs []error
	if err := p.profiles.Delete(ctx, models.CollectionUsers, id); err != nil {
		errs = append(errs, err)
	}
	if err := ac.DeleteUser(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if err := stderrors.Join(errs...); err != nil {
		p.logger.Error("identity compensation failed; manual cleanup required", map[string]interface{}{
			"userId": id,
			"error":  err,
		})
		return err
	}
	p.logger.Warn("identity rolled back", map[string]interface{}{"userId": id})
	return nil
}
