package service

import "errors"

var (
	ErrAffiliateConfigInvalid = errors.New("affiliate config invalid")
	ErrCommissionRuleInvalid  = errors.New("commission rule invalid")
	ErrOrderNotFound          = errors.New("order not found")
	ErrAffiliateNotFound      = errors.New("affiliate not found")
	ErrReferralAlreadySettled = errors.New("referral already settled")
	ErrLedgerMismatch         = errors.New("ledger replay mismatch")
	ErrSnapshotUnavailable    = errors.New("commission snapshot unavailable")
	ErrBatchInProgress        = errors.New("batch already running")
)
