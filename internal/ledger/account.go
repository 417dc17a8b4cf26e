package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeMember AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Member sub-types
	SubTypePayout AccountSubType = iota

	// System sub-types
	SubTypeSystemActiveStake
	SubTypeSystemExpiredStake
	SubTypeSystemRewards

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
	SubTypeExternalMintedRewards
	SubTypeExternalBurns
)

// AccountKey is the in-memory key for balance tracking (18 bytes, cache-friendly).
// The pool settles in a single unit of account, so there is no asset dimension.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // position UUID for members, zero for system/external
	SubType  AccountSubType
}

// NewMemberAccountKey creates a key for member payout accounts
func NewMemberAccountKey(position uuid.UUID, subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:    AccountScopeMember,
		EntityID: position,
		SubType:  subType,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeMember:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("member:%s:%s", uid.String(), k.subTypeName())
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s", k.subTypeName())
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s", k.subTypeName())
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath. Snapshot restore uses it to
// rebuild AccountKeys from the stored string form.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	switch parts[0] {
	case "member":
		if len(parts) != 3 {
			return AccountKey{}, fmt.Errorf("malformed member account path %q", path)
		}
		position, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("invalid position in account path %q: %w", path, err)
		}
		sub, err := parseSubType(parts[2])
		if err != nil {
			return AccountKey{}, err
		}
		return NewMemberAccountKey(position, sub), nil
	case "system":
		if len(parts) != 2 {
			return AccountKey{}, fmt.Errorf("malformed system account path %q", path)
		}
		sub, err := parseSubType(parts[1])
		if err != nil {
			return AccountKey{}, err
		}
		return NewSystemAccountKey(sub), nil
	case "external":
		if len(parts) != 2 {
			return AccountKey{}, fmt.Errorf("malformed external account path %q", path)
		}
		sub, err := parseSubType(parts[1])
		if err != nil {
			return AccountKey{}, err
		}
		return NewExternalAccountKey(sub), nil
	}
	return AccountKey{}, fmt.Errorf("unknown account scope in path %q", path)
}

func parseSubType(name string) (AccountSubType, error) {
	switch name {
	case "payout":
		return SubTypePayout, nil
	case "active_stake":
		return SubTypeSystemActiveStake, nil
	case "expired_stake":
		return SubTypeSystemExpiredStake, nil
	case "rewards":
		return SubTypeSystemRewards, nil
	case "deposits":
		return SubTypeExternalDeposits, nil
	case "withdrawals":
		return SubTypeExternalWithdrawals, nil
	case "minted_rewards":
		return SubTypeExternalMintedRewards, nil
	case "burns":
		return SubTypeExternalBurns, nil
	}
	return 0, fmt.Errorf("unknown account sub-type %q", name)
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypePayout:
		return "payout"
	case SubTypeSystemActiveStake:
		return "active_stake"
	case SubTypeSystemExpiredStake:
		return "expired_stake"
	case SubTypeSystemRewards:
		return "rewards"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	case SubTypeExternalMintedRewards:
		return "minted_rewards"
	case SubTypeExternalBurns:
		return "burns"
	default:
		return "unknown"
	}
}
