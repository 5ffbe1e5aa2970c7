package handler

import (
	"ctfex.com/internal/engine"
	"ctfex.com/internal/matching"
	"ctfex.com/pkg/common"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/xerr"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Order struct {
	Engine Engine
}

type placeReq struct {
	Trader   string `json:"trader"` // 可省略, 给了就必须等于签名者
	Intent   string `json:"intent" binding:"required"`
	Price    string `json:"price"` // "0.40", 和 tick 二选一
	Tick     int    `json:"tick"`
	Quantity uint64 `json:"quantity" binding:"required"`
	TIF      string `json:"tif"` // 默认 GTC
	ReqID    uint64 `json:"req_id"`
}

type placeResp struct {
	Order OrderView  `json:"order"`
	Fills []FillView `json:"fills"`
}

func (h *Order) Place(c *gin.Context) {
	mkt, err := marketParam(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	who, err := signer(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req placeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, errBadBody)
		return
	}
	p, err := req.toCommand(who)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	p.Market = mkt

	rep, err := h.Engine.PlaceOrder(c.Request.Context(), p)
	if err != nil {
		logger.Warn(c.Request.Context(), "place rejected",
			zap.String("market", mkt.Hex()), zap.String("intent", req.Intent),
			zap.Stringer("kind", xerr.KindOf(err)), zap.Error(err))
		common.FailErr(c, err)
		return
	}
	common.Success(c, placeResp{Order: orderView(rep.Order), Fills: fillViews(rep.Fills)})
}

func (r placeReq) toCommand(trader ethcommon.Address) (engine.PlaceOrder, error) {
	var p engine.PlaceOrder
	if r.Trader != "" {
		claimed, err := parseAddress(r.Trader)
		if err != nil {
			return p, err
		}
		if claimed != trader {
			return p, errNotSigner
		}
	}
	intent, err := matching.ParseIntent(r.Intent)
	if err != nil {
		return p, err
	}
	tif := matching.GTC
	if r.TIF != "" {
		if tif, err = matching.ParseTimeInForce(r.TIF); err != nil {
			return p, err
		}
	}
	tick := matching.Tick(r.Tick)
	switch {
	case r.Price != "":
		d, err := decimal.NewFromString(r.Price)
		if err != nil {
			return p, matching.ErrInvalidPrice
		}
		if tick, err = matching.PriceToTick(d); err != nil {
			return p, err
		}
	case r.Tick == 0:
		return p, errNoPrice
	}
	return engine.PlaceOrder{
		ReqID: r.ReqID, Trader: trader, Intent: intent,
		Tick: tick, Quantity: r.Quantity, TIF: tif,
	}, nil
}

func (h *Order) Cancel(c *gin.Context) {
	id, err := orderIDParam(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	caller, err := signer(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	o, err := h.Engine.CancelOrder(c.Request.Context(), id, caller)
	if err != nil {
		logger.Warn(c.Request.Context(), "cancel rejected",
			zap.Uint64("order_id", id), zap.Stringer("kind", xerr.KindOf(err)), zap.Error(err))
		common.FailErr(c, err)
		return
	}
	common.Success(c, orderView(o))
}

func (h *Order) Get(c *gin.Context) {
	id, err := orderIDParam(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	o, err := h.Engine.Order(c.Request.Context(), id)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, orderView(o))
}
