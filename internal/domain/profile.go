package domain

// UserProfile is the behavioral summary of one user's transaction history.
// Profiles are read-only once built.
type UserProfile struct {
	UserID int64 `json:"userId"`

	// ActiveHours maps hour of day to the number of historical transactions in that hour.
	ActiveHours map[int]int `json:"activeHours"`

	// CommonMerchants holds merchants seen at least twice.
	CommonMerchants map[string]struct{} `json:"-"`

	MerchantAmountMean map[string]float64 `json:"merchantAmountMean"`
	MerchantAmountStd  map[string]float64 `json:"merchantAmountStd"`

	AmountMean float64 `json:"amountMean"`
	AmountStd  float64 `json:"amountStd"`
	MinAmount  float64 `json:"minAmount"`
	MaxAmount  float64 `json:"maxAmount"`

	TransactionCount int `json:"transactionCount"`
}

// IsCommonMerchant reports whether the user has used the merchant at least twice.
func (p *UserProfile) IsCommonMerchant(merchant string) bool {
	_, ok := p.CommonMerchants[merchant]
	return ok
}

// Profiles maps user ID to profile. Users without enough history are absent.
type Profiles map[int64]*UserProfile

// Get returns the profile for a user, or nil.
func (p Profiles) Get(userID int64) *UserProfile {
	if p == nil {
		return nil
	}
	return p[userID]
}
