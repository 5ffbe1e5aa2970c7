package engine

import (
	"ctfex.com/internal/matching"
)

// emitter 接收一条命令产生的事件. 回放时 outbox 已完整的命令用 noopEmitter
type emitter interface {
	emit(ev Event) error
}

type noopEmitter struct{}

func (noopEmitter) emit(Event) error { return nil }

type outboxEmitter struct {
	out Outbox
}

func (e outboxEmitter) emit(ev Event) error { return e.out.Append(ev) }

// 没开 outbox 时直接投递, 满了就丢 (at-most-once)
type busEmitter struct {
	bus *ChanBus
}

func (e busEmitter) emit(ev Event) error {
	e.bus.TryPublish(ev)
	return nil
}

// placeEvents: accepted, then every fill in execution order, then rested
// or cancelled for whatever is left.
func placeEvents(seq uint64, cmd Command, res matching.PlaceResult) []Event {
	o := res.Order
	evs := make([]Event, 0, len(res.Fills)+2)
	base := Event{
		Seq: seq, ReqID: cmd.ReqID, Ts: cmd.Ts, Market: cmd.Market,
		OrderID: o.ID, Trader: o.Trader,
	}

	acc := base
	acc.Type = EvAccepted
	acc.Status = o.Status
	acc.Filled = o.Filled
	acc.Tick = o.UserTick()
	acc.Qty = o.Quantity
	acc.WantsNo = o.WantsNo
	evs = append(evs, acc)

	for _, f := range res.Fills {
		ev := base
		ev.Type = EvTrade
		if f.Kind == matching.FillMint {
			ev.Type = EvMint
		}
		ev.MakerOrderID = f.MakerOrderID
		ev.Maker = f.Maker
		ev.Tick = f.Tick
		ev.Qty = f.Quantity
		ev.WantsNo = f.WantsNo
		ev.TakerPaid = f.TakerPaid
		ev.MakerPaid = f.MakerPaid
		evs = append(evs, ev)
	}

	if o.Remaining() > 0 {
		tail := base
		tail.Status = o.Status
		tail.Filled = o.Filled
		tail.Tick = o.UserTick()
		tail.Qty = o.Remaining()
		tail.WantsNo = o.WantsNo
		if o.Live() {
			tail.Type = EvRested
		} else {
			tail.Type = EvCancelled
		}
		evs = append(evs, tail)
	}

	for i := range evs {
		evs[i].Idx = uint16(i)
	}
	return evs
}

func cancelEvents(seq uint64, cmd Command, o matching.Order) []Event {
	return []Event{{
		Type: EvCancelled, Seq: seq, ReqID: cmd.ReqID, Ts: cmd.Ts, Market: cmd.Market,
		OrderID: o.ID, Trader: o.Trader, Status: o.Status, Filled: o.Filled,
		Tick: o.UserTick(), Qty: o.Remaining(), WantsNo: o.WantsNo,
	}}
}

// emitAll 写完一条命令的所有事件, 最后写 CmdEnd 边界
func emitAll(em emitter, out Outbox, seq uint64, evs []Event) error {
	for _, ev := range evs {
		if err := em.emit(ev); err != nil {
			return err
		}
	}
	if out != nil {
		return out.AppendCmdEnd(seq)
	}
	return nil
}
