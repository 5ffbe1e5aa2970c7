package matching

import (
	"ctfex.com/internal/market"
	"ctfex.com/pkg/xerr"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidTick         = xerr.New(xerr.InvalidOrder, xerr.KindValidation, "tick out of range")
	ErrInvalidPrice        = xerr.New(xerr.InvalidOrder, xerr.KindValidation, "price must be a multiple of 0.01 in (0, 1)")
	ErrInvalidQuantity     = xerr.New(xerr.InvalidOrder, xerr.KindValidation, "quantity must be positive")
	ErrInvalidIntent       = xerr.New(xerr.InvalidOrder, xerr.KindValidation, "unknown order intent")
	ErrInvalidTimeInForce  = xerr.New(xerr.InvalidOrder, xerr.KindValidation, "unknown time in force")
	ErrInvalidOrderID      = xerr.New(xerr.InvalidOrder, xerr.KindValidation, "order id missing or reused")
	ErrPostOnlyWouldCross  = xerr.New(xerr.PolicyViolation, xerr.KindPolicy, "post only order would cross")
	ErrFOKNotFilled        = xerr.New(xerr.PolicyViolation, xerr.KindPolicy, "fill or kill order not fully filled")
	ErrOrderNotFound       = xerr.New(xerr.NotFound, xerr.KindNotFound, "order not found")
	ErrOrderNotCancellable = xerr.New(xerr.PolicyViolation, xerr.KindPolicy, "order is not active")
	ErrUnauthorized        = xerr.New(xerr.Unauthorized, xerr.KindAuthorization, "caller is neither owner nor approved operator")
)

// Side of the YES book. Bids hold BuyYes and SellNo, asks hold SellYes and BuyNo.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func SideOf(isBuy bool) Side {
	if isBuy {
		return Bid
	}
	return Ask
}

func (s Side) Opposite() Side { return s ^ 1 }

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

type TimeInForce uint8

const (
	GTC TimeInForce = iota + 1
	IOC
	FOK
	PostOnly
)

func (t TimeInForce) Valid() bool { return t >= GTC && t <= PostOnly }

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case PostOnly:
		return "POST_ONLY"
	default:
		return "UNKNOWN"
	}
}

func ParseTimeInForce(s string) (TimeInForce, error) {
	for t := GTC; t <= PostOnly; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, ErrInvalidTimeInForce
}

// Status: Active -> PartiallyFilled -> Filled, and Active|PartiallyFilled -> Cancelled.
type Status uint8

const (
	Active Status = iota + 1
	PartiallyFilled
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

type Order struct {
	ID        uint64
	Market    common.Hash
	Trader    common.Address
	Intent    Intent
	Tick      Tick // YES-price space
	IsBuy     bool
	WantsNo   bool
	Quantity  uint64
	Filled    uint64
	TIF       TimeInForce
	Status    Status
	CreatedAt int64
}

func (o *Order) Side() Side        { return SideOf(o.IsBuy) }
func (o *Order) Remaining() uint64 { return o.Quantity - o.Filled }
func (o *Order) UserTick() Tick    { return UserTick(o.Tick, o.WantsNo) }

// Live orders can still trade or be cancelled.
func (o *Order) Live() bool { return o.Status == Active || o.Status == PartiallyFilled }

// TokenHolder orders deliver a token (SellYes, SellNo).
func (o *Order) TokenHolder() bool { return o.IsBuy == o.WantsNo }

// PureBuyer orders pay only cash (BuyYes, BuyNo).
func (o *Order) PureBuyer() bool { return o.IsBuy != o.WantsNo }

type FillKind uint8

const (
	FillTrade FillKind = iota + 1
	FillMint
)

func (k FillKind) String() string {
	if k == FillMint {
		return "mint"
	}
	return "trade"
}

// Fill is one settlement. For a trade the token moves from the holder to
// the buyer and exactly one side pays cash; for a mint both sides pay and
// TakerPaid+MakerPaid == Quantity.
type Fill struct {
	Kind         FillKind
	TakerOrderID uint64
	MakerOrderID uint64
	Taker        common.Address
	Maker        common.Address
	Tick         Tick // maker's tick
	Quantity     uint64
	WantsNo      bool // asset of a trade; for a mint, the taker's side
	TakerPaid    uint64
	MakerPaid    uint64
}

type PlaceRequest struct {
	ID       uint64
	Trader   common.Address
	Intent   Intent
	Tick     Tick // in the intent's own asset
	Quantity uint64
	TIF      TimeInForce
}

type PlaceResult struct {
	Order Order
	Fills []Fill
}

// Journal is the staged ledger an operation settles through. Commit is
// called only after the book reached its final state.
type Journal interface {
	Transfer(asset common.Hash, from, to common.Address, amount uint64) error
	MintPair(m *market.Market, to common.Address, amount uint64) error
	IsApprovedForAll(owner, operator common.Address) (bool, error)
	Commit() error
	Discard()
}

// Env is everything an operation needs besides the book itself. Replay
// skips market-state and authorization checks.
type Env struct {
	Ledger   Journal
	Market   *market.Market
	Exchange common.Address
	Now      int64
	Replay   bool
}

type LevelView struct {
	Tick     Tick   `json:"tick"`
	Quantity uint64 `json:"quantity"`
	Orders   int    `json:"orders"`
}

type Depth struct {
	Bids []LevelView `json:"bids"`
	Asks []LevelView `json:"asks"`
}
