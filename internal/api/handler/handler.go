package handler

import (
	"context"
	"strconv"
	"strings"

	"ctfex.com/internal/engine"
	"ctfex.com/internal/market"
	"ctfex.com/internal/matching"
	"ctfex.com/pkg/middleware"
	"ctfex.com/pkg/xerr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

var (
	errBadMarket  = xerr.New(xerr.RequestParamsError, xerr.KindValidation, "market must be a 32-byte hex id")
	errBadAddress = xerr.New(xerr.RequestParamsError, xerr.KindValidation, "address must be 20-byte hex")
	errBadOrderID = xerr.New(xerr.RequestParamsError, xerr.KindValidation, "order id must be a positive integer")
	errBadBody    = xerr.New(xerr.RequestParamsError, xerr.KindValidation, "malformed request body")
	errNoPrice    = xerr.New(xerr.RequestParamsError, xerr.KindValidation, "one of price or tick is required")
	errBadLevels  = xerr.New(xerr.RequestParamsError, xerr.KindValidation, "levels must be in 1..99")
	errUnsigned   = xerr.New(xerr.Unauthorized, xerr.KindAuthorization, "request is not signed")
	errNotSigner  = xerr.New(xerr.Unauthorized, xerr.KindAuthorization, "trader must be the request signer")
)

// Engine is what the HTTP layer needs from the matching engine.
type Engine interface {
	PlaceOrder(ctx context.Context, p engine.PlaceOrder) (engine.PlaceReply, error)
	CancelOrder(ctx context.Context, orderID uint64, caller common.Address) (matching.Order, error)
	Order(ctx context.Context, orderID uint64) (matching.Order, error)
	Best(ctx context.Context, mkt common.Hash) (engine.BestQuote, error)
	Depth(ctx context.Context, mkt common.Hash, levels int) (matching.Depth, error)
}

// Registry is the admin surface over markets.
type Registry interface {
	Get(id common.Hash) (*market.Market, error)
	List() []*market.Market
	Register(ctx context.Context, caller common.Address, m *market.Market) error
	SetPaused(ctx context.Context, caller common.Address, id common.Hash, paused bool) error
	Resolve(ctx context.Context, caller common.Address, id common.Hash, yesWins bool) error
}

func parseHash(s string) (common.Hash, error) {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return common.Hash{}, errBadMarket
	}
	h := common.HexToHash(s)
	if h.Hex() != strings.ToLower(s) {
		return common.Hash{}, errBadMarket
	}
	return h, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errBadAddress
	}
	return common.HexToAddress(s), nil
}

// signer 是签名中间件验证过的调用方; 请求体里的地址只能和它一致
func signer(c *gin.Context) (common.Address, error) {
	who, ok := middleware.Caller(c)
	if !ok {
		return common.Address{}, errUnsigned
	}
	return who, nil
}

func marketParam(c *gin.Context) (common.Hash, error) { return parseHash(c.Param("market")) }

func orderIDParam(c *gin.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errBadOrderID
	}
	return id, nil
}
