package models

// UserType distinguishes end customers from vendors selling on their behalf.
type UserType string

const (
	UserTypeTraveller UserType = "traveller"
	UserTypeVendor    UserType = "vendor"
)

// UsePurse is a wallet's policy on paying from its purse.
type UsePurse string

const (
	UsePurseNever    UsePurse = "NEVER"
	UsePurseAlways   UsePurse = "ALWAYS"
	UsePurseOptional UsePurse = "OPTIONAL"
)

// User is the identity acting on a transaction.
type User struct {
	ID       string
	Type     UserType
	Locale   string
	Operator bool
}

// IsVendor reports whether the user pays out of band.
func (u User) IsVendor() bool {
	return u.Type == UserTypeVendor
}

// PaymentMethod is a stored method of payment handled by one payment service.
type PaymentMethod struct {
	ID        string `json:"id"`
	ServiceID string `json:"service_id"`
	Label     string `json:"label,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Wallet holds a user's purse and payment methods.
type Wallet struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	PurseID        string          `json:"purse_id"`
	Currency       string          `json:"currency"`
	UsePurse       UsePurse        `json:"use_purse"`
	PaymentMethods []PaymentMethod `json:"payment_methods,omitempty"`
}

// PaymentMethod looks up a payment method by id.
func (w Wallet) PaymentMethod(id string) (PaymentMethod, bool) {
	for _, pm := range w.PaymentMethods {
		if pm.ID == id {
			return pm, true
		}
	}
	return PaymentMethod{}, false
}
