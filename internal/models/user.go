package models

import "time"

// Subscription tiers.
const (
	TierFree  = "free"
	TierBasic = "basic"
	TierPro   = "pro"
)

// UnlimitedCredits is the balance stored for plans without a quota.
const UnlimitedCredits = 999999

// FreeCredits is the balance granted at registration.
const FreeCredits = 3

// PlanQuota returns the credit balance a subscription tier resets to.
func PlanQuota(tier string) (int, bool) {
	switch tier {
	case TierFree:
		return FreeCredits, true
	case TierBasic:
		return 30, true
	case TierPro:
		return UnlimitedCredits, true
	}
	return 0, false
}

// ValidTier reports whether tier is a known subscription tier.
func ValidTier(tier string) bool {
	_, ok := PlanQuota(tier)
	return ok
}

// User is an account of the service.
type User struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Email              string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash       string    `gorm:"size:255;not null" json:"-"` // bcrypt, never exposed
	FirstName          string    `gorm:"size:100;not null" json:"firstName"`
	LastName           string    `gorm:"size:100;not null" json:"lastName"`
	CompanyName        string    `gorm:"size:255" json:"companyName,omitempty"`
	Phone              string    `gorm:"size:50" json:"phone,omitempty"`
	Address            string    `gorm:"size:500" json:"address,omitempty"`
	SIRET              string    `gorm:"size:20" json:"siret,omitempty"`
	Credits            int       `gorm:"not null" json:"credits"`
	SubscriptionTier   string    `gorm:"size:20;not null;default:free;index" json:"subscriptionTier"`
	PaymentCustomerRef string    `gorm:"size:255;index" json:"-"`
}

// Unlimited reports whether the balance is the unlimited sentinel.
func (u *User) Unlimited() bool { return u.Credits >= UnlimitedCredits }

// ConsumesCredits reports whether saving a quote spends a credit. Only the
// free tier is metered.
func (u *User) ConsumesCredits() bool { return u.SubscriptionTier == TierFree }

// FullName joins first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// UserView is the JSON shape of a user returned by the API.
type UserView struct {
	ID               uint   `json:"id"`
	Email            string `json:"email"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	CompanyName      string `json:"companyName,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Address          string `json:"address,omitempty"`
	SIRET            string `json:"siret,omitempty"`
	Credits          int    `json:"credits"`
	SubscriptionTier string `json:"subscriptionTier"`
	Unlimited        bool   `json:"unlimited"`
}

func (u *User) View() UserView {
	return UserView{
		ID:               u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		CompanyName:      u.CompanyName,
		Phone:            u.Phone,
		Address:          u.Address,
		SIRET:            u.SIRET,
		Credits:          u.Credits,
		SubscriptionTier: u.SubscriptionTier,
		Unlimited:        u.Unlimited(),
	}
}
