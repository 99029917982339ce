package service

import "errors"

var (
	// ErrInvalidRuleConfiguration rejects malformed rates or tiers at rule write time.
	ErrInvalidRuleConfiguration = errors.New("commission rule: invalid configuration")
	// ErrRuleNotFound indicates no rule exists for the given id.
	ErrRuleNotFound = errors.New("commission rule: not found")

	// ErrNoEligibleCommission means no rule matched or the result fell below the rule threshold. No record is created.
	ErrNoEligibleCommission = errors.New("commission: no eligible commission")
	// ErrInvalidStatusTransition rejects a lifecycle move the state machine does not allow. State is unchanged.
	ErrInvalidStatusTransition = errors.New("commission: invalid status transition")
	// ErrCommissionNotFound indicates no commission exists for the given id.
	ErrCommissionNotFound = errors.New("commission: not found")
	// ErrInvalidCommissionRequest covers malformed events and missing transition metadata.
	ErrInvalidCommissionRequest = errors.New("commission: invalid request")
)
