package models

// User is the owner of a company as mirrored from the identity provider.
type User struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Username           string `json:"username"`
	Role               string `json:"role"`
	Plan               string `json:"plan,omitempty"`
	SubscriptionStatus string `json:"subscriptionStatus,omitempty"`
}
