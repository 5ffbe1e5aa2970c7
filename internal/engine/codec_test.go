package engine

import (
	"testing"

	"ctfex.com/internal/matching"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCmd() Command {
	return Command{
		Type:     CmdPlace,
		ReqID:    42,
		Ts:       1_700_000_123,
		Market:   common.HexToHash("0xc0ffee"),
		OrderID:  7,
		Trader:   common.HexToAddress("0x0000000000000000000000000000000000000a11"),
		Intent:   matching.BuyNo,
		Tick:     35,
		Quantity: 1 << 40,
		TIF:      matching.FOK,
	}
}

func TestCmdCodecs(t *testing.T) {
	for name, c := range map[string]CmdCodec{"binary": BinaryCmdCodec{}, "json": JSONCmdCodec{Version: 1}} {
		t.Run(name, func(t *testing.T) {
			in := sampleCmd()
			payload, err := c.Encode(nil, 9, in)
			require.NoError(t, err)

			seq, out, err := c.Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, uint64(9), seq)
			assert.Equal(t, in, out)

			abort := Command{Type: CmdAbort, Ts: 1_700_000_200, Market: in.Market, OrderID: 4}
			payload, err = c.Encode(nil, 10, abort)
			require.NoError(t, err)
			seq, out, err = c.Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, uint64(10), seq)
			assert.Equal(t, abort, out)
		})
	}
}

func TestBinaryCmdCodec_Rejects(t *testing.T) {
	var c BinaryCmdCodec
	_, _, err := c.Decode(make([]byte, cmdRecordLen-1))
	assert.ErrorIs(t, err, ErrBadCmdRecordLen)

	payload, err := c.Encode(nil, 1, sampleCmd())
	require.NoError(t, err)
	payload[offVer] = 9
	_, _, err = c.Decode(payload)
	assert.ErrorIs(t, err, ErrBadCmdVersion)

	payload[offVer] = cmdWalVersion
	payload[offType] = 77
	_, _, err = c.Decode(payload)
	assert.ErrorIs(t, err, ErrBadCmdType)

	_, err = c.Encode(nil, 1, Command{})
	assert.ErrorIs(t, err, ErrBadCmdType)
}

// 复用调用方的 buffer, 不再分配
func TestBinaryCmdCodec_ReusesBuffer(t *testing.T) {
	var rec [cmdRecordLen]byte
	payload, err := BinaryCmdCodec{}.Encode(rec[:0], 1, sampleCmd())
	require.NoError(t, err)
	assert.Same(t, &rec[0], &payload[0])
}

func TestEvCodecs(t *testing.T) {
	in := Event{
		Type:         EvMint,
		Seq:          11,
		Idx:          3,
		ReqID:        5,
		Ts:           1_700_000_000,
		Market:       common.HexToHash("0xc0ffee"),
		OrderID:      8,
		Trader:       common.HexToAddress("0x0000000000000000000000000000000000000b0b"),
		Status:       matching.PartiallyFilled,
		Filled:       40,
		MakerOrderID: 2,
		Maker:        common.HexToAddress("0x0000000000000000000000000000000000000a11"),
		Tick:         40,
		Qty:          40,
		WantsNo:      true,
		TakerPaid:    24,
		MakerPaid:    16,
	}
	for name, c := range map[string]EvCodec{"binary": BinaryEvCodec{}, "json": JSONEvCodec{Version: 1}} {
		t.Run(name, func(t *testing.T) {
			payload, err := c.Encode(nil, in)
			require.NoError(t, err)
			out, err := c.Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}

	_, err := BinaryEvCodec{}.Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadEvRecordLen)
}
