package models

import "time"

const CollectionUsers = "users"

// User statuses
const (
	UserStatusActive          = "Active"
	UserStatusSuspended       = "Suspended"
	UserStatusPendingApproval = "Pending Approval"
)

// UserStatuses are the values an admin may set.
var UserStatuses = []string{UserStatusActive, UserStatusSuspended, UserStatusPendingApproval}

const RoleStockist = "stockist"

// UserProfile is the marketplace-side profile keyed by the identity id.
type UserProfile struct {
	ID        string    `json:"id,omitempty"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Gender    string    `json:"gender,omitempty"`
	Status    string    `json:"status"`
	Roles     []string  `json:"roles"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u UserProfile) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u UserProfile) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// ProfileUpdate carries the fields a distributor may edit.
type ProfileUpdate struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Gender    *string `json:"gender,omitempty"`
}
