package engine

import (
	"encoding/binary"
	"errors"

	"ctfex.com/internal/matching"
)

const (
	evWalVersion = 1
	evRecordLen  = 160

	evOffVer     = 0
	evOffType    = 1
	evOffStatus  = 2
	evOffTick    = 3
	evOffWantsNo = 4   // 5 保留
	evOffIdx     = 6   // uint16
	evOffSeq     = 8   // uint64
	evOffReqID   = 16  // uint64
	evOffTs      = 24  // int64 as uint64
	evOffOrder   = 32  // uint64
	evOffMakerID = 40  // uint64
	evOffFilled  = 48  // uint64
	evOffQty     = 56  // uint64
	evOffTPaid   = 64  // uint64
	evOffMPaid   = 72  // uint64
	evOffMarket  = 80  // [32]byte
	evOffTrader  = 112 // [20]byte
	evOffMaker   = 132 // [20]byte, 152..159 保留
)

var (
	ErrBadEvRecordLen = errors.New("outbox: bad record length")
	ErrBadEvVersion   = errors.New("outbox: bad version")
)

type BinaryEvCodec struct{}

func (BinaryEvCodec) Encode(dst []byte, ev Event) ([]byte, error) {
	if cap(dst) < evRecordLen {
		dst = make([]byte, evRecordLen)
	} else {
		dst = dst[:evRecordLen]
		clear(dst)
	}

	dst[evOffVer] = evWalVersion
	dst[evOffType] = byte(ev.Type)
	dst[evOffStatus] = byte(ev.Status)
	dst[evOffTick] = byte(ev.Tick)
	if ev.WantsNo {
		dst[evOffWantsNo] = 1
	}
	binary.LittleEndian.PutUint16(dst[evOffIdx:], ev.Idx)
	binary.LittleEndian.PutUint64(dst[evOffSeq:], ev.Seq)
	binary.LittleEndian.PutUint64(dst[evOffReqID:], ev.ReqID)
	binary.LittleEndian.PutUint64(dst[evOffTs:], uint64(ev.Ts))
	binary.LittleEndian.PutUint64(dst[evOffOrder:], ev.OrderID)
	binary.LittleEndian.PutUint64(dst[evOffMakerID:], ev.MakerOrderID)
	binary.LittleEndian.PutUint64(dst[evOffFilled:], ev.Filled)
	binary.LittleEndian.PutUint64(dst[evOffQty:], ev.Qty)
	binary.LittleEndian.PutUint64(dst[evOffTPaid:], ev.TakerPaid)
	binary.LittleEndian.PutUint64(dst[evOffMPaid:], ev.MakerPaid)
	copy(dst[evOffMarket:evOffMarket+32], ev.Market[:])
	copy(dst[evOffTrader:evOffTrader+20], ev.Trader[:])
	copy(dst[evOffMaker:evOffMaker+20], ev.Maker[:])
	return dst, nil
}

func (BinaryEvCodec) Decode(payload []byte) (Event, error) {
	if len(payload) != evRecordLen {
		return Event{}, ErrBadEvRecordLen
	}
	if payload[evOffVer] != evWalVersion {
		return Event{}, ErrBadEvVersion
	}

	var ev Event
	ev.Type = EventType(payload[evOffType])
	ev.Status = matching.Status(payload[evOffStatus])
	ev.Tick = matching.Tick(payload[evOffTick])
	ev.WantsNo = payload[evOffWantsNo] == 1
	ev.Idx = binary.LittleEndian.Uint16(payload[evOffIdx:])
	ev.Seq = binary.LittleEndian.Uint64(payload[evOffSeq:])
	ev.ReqID = binary.LittleEndian.Uint64(payload[evOffReqID:])
	ev.Ts = int64(binary.LittleEndian.Uint64(payload[evOffTs:]))
	ev.OrderID = binary.LittleEndian.Uint64(payload[evOffOrder:])
	ev.MakerOrderID = binary.LittleEndian.Uint64(payload[evOffMakerID:])
	ev.Filled = binary.LittleEndian.Uint64(payload[evOffFilled:])
	ev.Qty = binary.LittleEndian.Uint64(payload[evOffQty:])
	ev.TakerPaid = binary.LittleEndian.Uint64(payload[evOffTPaid:])
	ev.MakerPaid = binary.LittleEndian.Uint64(payload[evOffMPaid:])
	copy(ev.Market[:], payload[evOffMarket:evOffMarket+32])
	copy(ev.Trader[:], payload[evOffTrader:evOffTrader+20])
	copy(ev.Maker[:], payload[evOffMaker:evOffMaker+20])
	return ev, nil
}
