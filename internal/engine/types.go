package engine

import (
	"ctfex.com/internal/matching"
	"ctfex.com/pkg/xerr"
	"github.com/ethereum/go-ethereum/common"
)

// 命令类型. 只有成功提交的命令才会进 WAL
type CmdType uint8

const (
	CmdPlace  CmdType = iota + 1 // 下单
	CmdCancel                    // 撤单
	CmdAbort                     // 作废 [OrderID, 本条 seq) 之间的命令: 账本没能落账
)

func (t CmdType) valid() bool { return t >= CmdPlace && t <= CmdAbort }

func (t CmdType) String() string {
	switch t {
	case CmdPlace:
		return "place"
	case CmdCancel:
		return "cancel"
	case CmdAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Command is one state-changing request to a market actor. OrderID and Ts
// are stamped by the actor before apply, so replay sees exactly what the
// live run saw.
type Command struct {
	Type   CmdType
	ReqID  uint64
	Ts     int64 // unix seconds used as "now"
	Market common.Hash

	OrderID  uint64         // place: assigned id; cancel: target; abort: first voided seq
	Trader   common.Address // place: owner; cancel: caller
	Intent   matching.Intent
	Tick     matching.Tick
	Quantity uint64
	TIF      matching.TimeInForce
}

type EventType uint8

const (
	EvAccepted  EventType = iota + 1 // 订单被接受 (含 IOC 零成交)
	EvRested                         // 挂入订单簿
	EvTrade                          // 成交
	EvMint                           // 互补铸造成交
	EvCancelled                      // 撤单 / IOC 剩余
)

// 约定一个"不会和正常事件冲突"的类型: 命令结束标记
const EvCmdEnd EventType = 250

func (t EventType) String() string {
	switch t {
	case EvAccepted:
		return "accepted"
	case EvRested:
		return "rested"
	case EvTrade:
		return "trade"
	case EvMint:
		return "mint"
	case EvCancelled:
		return "cancelled"
	case EvCmdEnd:
		return "cmd_end"
	default:
		return "unknown"
	}
}

type Event struct {
	Type EventType `json:"type"`

	// 同一 market actor 内单调递增, 用于对齐/回放/排查
	Seq   uint64 `json:"seq"`
	Idx   uint16 `json:"idx"` // 同一 seq 内事件序号
	ReqID uint64 `json:"req_id"`
	Ts    int64  `json:"ts"`

	Market  common.Hash     `json:"market"`
	OrderID uint64          `json:"order_id"`
	Trader  common.Address  `json:"trader"`
	Status  matching.Status `json:"status,omitempty"`
	Filled  uint64          `json:"filled,omitempty"`

	// trade / mint
	MakerOrderID uint64         `json:"maker_order_id,omitempty"`
	Maker        common.Address `json:"maker,omitempty"`
	Tick         matching.Tick  `json:"tick,omitempty"`
	Qty          uint64         `json:"qty,omitempty"`
	WantsNo      bool           `json:"wants_no,omitempty"`
	TakerPaid    uint64         `json:"taker_paid,omitempty"`
	MakerPaid    uint64         `json:"maker_paid,omitempty"`
}

// PlaceOrder is the caller-facing request; the engine assigns the id.
type PlaceOrder struct {
	ReqID    uint64
	Market   common.Hash
	Trader   common.Address
	Intent   matching.Intent
	Tick     matching.Tick // in the intent's own asset
	Quantity uint64
	TIF      matching.TimeInForce
}

type PlaceReply struct {
	Order matching.Order
	Fills []matching.Fill
}

type BestQuote struct {
	Bid    matching.Tick `json:"bid"`
	HasBid bool          `json:"has_bid"`
	Ask    matching.Tick `json:"ask"`
	HasAsk bool          `json:"has_ask"`
}

var (
	ErrEngineBusy    = xerr.New(xerr.EngineBusy, xerr.KindUnavailable, "engine busy: mailbox full")
	ErrEngineStopped = xerr.New(xerr.EngineBusy, xerr.KindUnavailable, "engine stopped")
	ErrWALFailed     = xerr.New(xerr.ServerCommonError, xerr.KindUnavailable, "command log write failed")
	ErrLedgerCommit  = xerr.New(xerr.ServerCommonError, xerr.KindUnavailable, "ledger commit failed")
	ErrBadCommand    = xerr.New(xerr.RequestParamsError, xerr.KindValidation, "bad command")
)
