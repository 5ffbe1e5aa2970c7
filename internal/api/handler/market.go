package handler

import (
	"strconv"

	"ctfex.com/internal/market"
	"ctfex.com/pkg/common"
	"ctfex.com/pkg/xerr"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

var errBadOutcome = xerr.New(xerr.RequestParamsError, xerr.KindValidation, "outcome must be YES or NO")

type Market struct {
	Engine   Engine
	Registry Registry
}

func (h *Market) List(c *gin.Context) {
	ms := h.Registry.List()
	out := make([]MarketView, 0, len(ms))
	for _, m := range ms {
		out = append(out, marketView(m))
	}
	common.Success(c, out)
}

func (h *Market) Get(c *gin.Context) {
	id, err := marketParam(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	m, err := h.Registry.Get(id)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, marketView(m))
}

func (h *Market) Best(c *gin.Context) {
	id, err := marketParam(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	q, err := h.Engine.Best(c.Request.Context(), id)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, QuoteView{Bid: levelPrice(q.Bid, q.HasBid), Ask: levelPrice(q.Ask, q.HasAsk)})
}

// Book 返回 YES 视角的深度, levels 默认 10
func (h *Market) Book(c *gin.Context) {
	id, err := marketParam(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	levels, err := strconv.Atoi(c.DefaultQuery("levels", "10"))
	if err != nil || levels < 1 || levels > 99 {
		common.FailErr(c, errBadLevels)
		return
	}
	d, err := h.Engine.Depth(c.Request.Context(), id, levels)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, d)
}

type registerReq struct {
	ConditionID string `json:"condition_id" binding:"required"`
	Collateral  string `json:"collateral" binding:"required"`
	EndTime     int64  `json:"end_time"`
}

func (h *Market) Register(c *gin.Context) {
	caller, err := signer(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, errBadBody)
		return
	}
	cond, err := parseHash(req.ConditionID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	collateral, err := parseAddress(req.Collateral)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	m := market.New(cond, collateral, req.EndTime)
	if err := h.Registry.Register(c.Request.Context(), caller, m); err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, marketView(m))
}

func (h *Market) Pause(c *gin.Context)   { h.setPaused(c, true) }
func (h *Market) Unpause(c *gin.Context) { h.setPaused(c, false) }

func (h *Market) setPaused(c *gin.Context, paused bool) {
	id, caller, ok := h.adminTarget(c)
	if !ok {
		return
	}
	if err := h.Registry.SetPaused(c.Request.Context(), caller, id, paused); err != nil {
		common.FailErr(c, err)
		return
	}
	h.Get(c)
}

type resolveReq struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (h *Market) Resolve(c *gin.Context) {
	id, caller, ok := h.adminTarget(c)
	if !ok {
		return
	}
	var req resolveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, errBadBody)
		return
	}
	var yes bool
	switch req.Outcome {
	case "YES":
		yes = true
	case "NO":
	default:
		common.FailErr(c, errBadOutcome)
		return
	}
	if err := h.Registry.Resolve(c.Request.Context(), caller, id, yes); err != nil {
		common.FailErr(c, err)
		return
	}
	h.Get(c)
}

func (h *Market) adminTarget(c *gin.Context) (id ethcommon.Hash, caller ethcommon.Address, ok bool) {
	mkt, err := marketParam(c)
	if err != nil {
		common.FailErr(c, err)
		return id, caller, false
	}
	who, err := signer(c)
	if err != nil {
		common.FailErr(c, err)
		return id, caller, false
	}
	return mkt, who, true
}
