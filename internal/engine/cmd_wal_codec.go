package engine

import (
	"encoding/binary"
	"errors"

	"ctfex.com/internal/matching"
)

const (
	cmdWalVersion = 1
	cmdRecordLen  = 100

	offVer     = 0
	offType    = 1
	offIntent  = 2
	offTIF     = 3
	offTick    = 4  // uint8, 5..7 保留
	offSeq     = 8  // uint64
	offReqID   = 16 // uint64
	offTs      = 24 // int64 as uint64
	offOrderID = 32 // uint64
	offQty     = 40 // uint64
	offMarket  = 48 // [32]byte
	offTrader  = 80 // [20]byte
)

var (
	ErrBadCmdRecordLen = errors.New("wal cmd: bad record length")
	ErrBadCmdVersion   = errors.New("wal cmd: bad version")
	ErrBadCmdType      = errors.New("wal cmd: bad cmd type")
)

// BinaryCmdCodec 定长小端编码, 热路径不分配
type BinaryCmdCodec struct{}

func (BinaryCmdCodec) Encode(dst []byte, seq uint64, cmd Command) ([]byte, error) {
	if !cmd.Type.valid() {
		return nil, ErrBadCmdType
	}
	if cap(dst) < cmdRecordLen {
		dst = make([]byte, cmdRecordLen)
	} else {
		dst = dst[:cmdRecordLen]
	}

	dst[offVer] = cmdWalVersion
	dst[offType] = byte(cmd.Type)
	dst[offIntent] = byte(cmd.Intent)
	dst[offTIF] = byte(cmd.TIF)
	dst[offTick] = byte(cmd.Tick)
	dst[5], dst[6], dst[7] = 0, 0, 0

	binary.LittleEndian.PutUint64(dst[offSeq:], seq)
	binary.LittleEndian.PutUint64(dst[offReqID:], cmd.ReqID)
	binary.LittleEndian.PutUint64(dst[offTs:], uint64(cmd.Ts))
	binary.LittleEndian.PutUint64(dst[offOrderID:], cmd.OrderID)
	binary.LittleEndian.PutUint64(dst[offQty:], cmd.Quantity)
	copy(dst[offMarket:offMarket+32], cmd.Market[:])
	copy(dst[offTrader:offTrader+20], cmd.Trader[:])
	return dst, nil
}

func (BinaryCmdCodec) Decode(payload []byte) (seq uint64, cmd Command, err error) {
	if len(payload) != cmdRecordLen {
		return 0, Command{}, ErrBadCmdRecordLen
	}
	if payload[offVer] != cmdWalVersion {
		return 0, Command{}, ErrBadCmdVersion
	}
	ct := CmdType(payload[offType])
	if !ct.valid() {
		return 0, Command{}, ErrBadCmdType
	}

	seq = binary.LittleEndian.Uint64(payload[offSeq:])
	cmd.Type = ct
	cmd.Intent = matching.Intent(payload[offIntent])
	cmd.TIF = matching.TimeInForce(payload[offTIF])
	cmd.Tick = matching.Tick(payload[offTick])
	cmd.ReqID = binary.LittleEndian.Uint64(payload[offReqID:])
	cmd.Ts = int64(binary.LittleEndian.Uint64(payload[offTs:]))
	cmd.OrderID = binary.LittleEndian.Uint64(payload[offOrderID:])
	cmd.Quantity = binary.LittleEndian.Uint64(payload[offQty:])
	copy(cmd.Market[:], payload[offMarket:offMarket+32])
	copy(cmd.Trader[:], payload[offTrader:offTrader+20])
	return seq, cmd, nil
}
