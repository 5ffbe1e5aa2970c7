package handler

import (
	"strconv"

	"ctfex.com/internal/matching"
	"ctfex.com/pkg/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type tickPrice struct {
	Tick  int    `json:"tick"`
	Price string `json:"price"`
}

// TickToPrice GET /ticks/:tick/price
func TickToPrice(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("tick"))
	if err != nil {
		common.FailErr(c, matching.ErrInvalidTick)
		return
	}
	p, err := matching.TickToPrice(matching.Tick(n))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, tickPrice{Tick: n, Price: p.StringFixed(2)})
}

// PriceToTick GET /prices/:price/tick
func PriceToTick(c *gin.Context) {
	d, err := decimal.NewFromString(c.Param("price"))
	if err != nil {
		common.FailErr(c, matching.ErrInvalidPrice)
		return
	}
	t, err := matching.PriceToTick(d)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, tickPrice{Tick: int(t), Price: d.StringFixed(2)})
}
