package models

// Household is a shared inventory namespace: the unit of multi-device sync
// scope. The invite code is issued by the remote side and is the only thing
// a user needs to share to add another device.
type Household struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InviteCode string `json:"inviteCode"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

// Clone returns a copy of the household.
func (h *Household) Clone() *Household {
	c := *h
	return &c
}

// HouseholdMember links a device to a household. Devices, not user
// accounts, are the membership unit: there is no sign-in.
type HouseholdMember struct {
	ID          string `json:"id"`
	HouseholdID string `json:"householdId"`
	DeviceID    string `json:"deviceId"`
	DeviceName  string `json:"deviceName,omitempty"`
	JoinedAt    string `json:"joinedAt"`
	LastActive  string `json:"lastActive"`
}
