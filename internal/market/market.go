package market

import (
	"math/big"

	"ctfex.com/pkg/xerr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Index sets of the two outcome slots of a binary condition.
const (
	YesIndexSet = 1
	NoIndexSet  = 2
)

var (
	ErrMarketNotRegistered = xerr.New(xerr.MarketUnavailable, xerr.KindMarketState, "market not registered")
	ErrMarketPaused        = xerr.New(xerr.MarketUnavailable, xerr.KindMarketState, "market paused")
	ErrMarketResolved      = xerr.New(xerr.MarketUnavailable, xerr.KindMarketState, "market resolved")
	ErrMarketExpired       = xerr.New(xerr.MarketUnavailable, xerr.KindMarketState, "market expired")
	ErrMarketExists        = xerr.New(xerr.InvalidOrder, xerr.KindValidation, "market already registered")
	ErrNotAuthority        = xerr.New(xerr.Unauthorized, xerr.KindAuthorization, "caller is not the market authority")
	ErrInvalidMarket       = xerr.New(xerr.InvalidOrder, xerr.KindValidation, "invalid market")
)

type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeYes
	OutcomeNo
)

func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "yes"
	case OutcomeNo:
		return "no"
	default:
		return "none"
	}
}

// Market is the registration record of one binary condition.
// EndTime is unix seconds, 0 means no expiry.
type Market struct {
	ID         common.Hash    `json:"id"` // condition id
	Collateral common.Address `json:"collateral"`
	YesToken   common.Hash    `json:"yes_token"`
	NoToken    common.Hash    `json:"no_token"`
	EndTime    int64          `json:"end_time"`
	Registered bool           `json:"registered"`
	Paused     bool           `json:"paused"`
	Resolved   bool           `json:"resolved"`
	Outcome    Outcome        `json:"outcome"`
}

func New(conditionID common.Hash, collateral common.Address, endTime int64) *Market {
	return &Market{
		ID:         conditionID,
		Collateral: collateral,
		YesToken:   PositionID(collateral, CollectionID(conditionID, YesIndexSet)),
		NoToken:    PositionID(collateral, CollectionID(conditionID, NoIndexSet)),
		EndTime:    endTime,
	}
}

// CollectionID = keccak256(parentCollection(0) ‖ conditionID ‖ indexSet)
func CollectionID(conditionID common.Hash, indexSet int64) common.Hash {
	return crypto.Keccak256Hash(
		common.Hash{}.Bytes(),
		conditionID.Bytes(),
		common.BigToHash(big.NewInt(indexSet)).Bytes(),
	)
}

// PositionID = keccak256(collateral ‖ collectionID)
func PositionID(collateral common.Address, collectionID common.Hash) common.Hash {
	return crypto.Keccak256Hash(collateral.Bytes(), collectionID.Bytes())
}

// CashAsset is the ledger key of the collateral token.
func (m *Market) CashAsset() common.Hash {
	return common.BytesToHash(m.Collateral.Bytes())
}

// Token returns the position id bought by an order with the given wantsNo.
func (m *Market) Token(wantsNo bool) common.Hash {
	if wantsNo {
		return m.NoToken
	}
	return m.YesToken
}

// CheckTradable is evaluated at operation entry, in this order:
// registered, paused, resolved, expired.
func (m *Market) CheckTradable(now int64) error {
	switch {
	case m == nil || !m.Registered:
		return ErrMarketNotRegistered
	case m.Paused:
		return ErrMarketPaused
	case m.Resolved:
		return ErrMarketResolved
	case m.EndTime > 0 && now >= m.EndTime:
		return ErrMarketExpired
	}
	return nil
}
