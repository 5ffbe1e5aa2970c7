package router

import (
	"net/http"

	"ctfex.com/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// 改状态的接口都要过 signed, 调用方身份取自签名

func Orders(api *gin.RouterGroup, eng handler.Engine, signed gin.HandlerFunc) {
	h := &handler.Order{Engine: eng}
	api.POST("/markets/:market/orders", signed, h.Place)
	api.GET("/orders/:id", h.Get)
	api.DELETE("/orders/:id", signed, h.Cancel)
}

func Markets(api *gin.RouterGroup, eng handler.Engine, reg handler.Registry, signed gin.HandlerFunc) {
	h := &handler.Market{Engine: eng, Registry: reg}
	api.GET("/markets", h.List)
	api.GET("/markets/:market", h.Get)
	api.GET("/markets/:market/best", h.Best)
	api.GET("/markets/:market/book", h.Book)

	// 管理接口, 签名者必须是 market authority
	api.POST("/markets", signed, h.Register)
	api.POST("/markets/:market/pause", signed, h.Pause)
	api.POST("/markets/:market/unpause", signed, h.Unpause)
	api.POST("/markets/:market/resolve", signed, h.Resolve)
}

func Ticks(api *gin.RouterGroup) {
	api.GET("/ticks/:tick/price", handler.TickToPrice)
	api.GET("/prices/:price/tick", handler.PriceToTick)
}

func Stream(api *gin.RouterGroup, h http.Handler) {
	api.GET("/stream", gin.WrapH(h))
}
