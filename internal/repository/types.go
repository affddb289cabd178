package repository

// ReferralListFilter 佣金记录列表过滤条件
type ReferralListFilter struct {
	Page               int
	PageSize           int
	AffiliateAccountID uint
	OrderID            uint
	Status             string
}
