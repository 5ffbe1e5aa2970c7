package handler

import (
	"ctfex.com/internal/market"
	"ctfex.com/internal/matching"
)

type OrderView struct {
	ID        uint64 `json:"id"`
	Market    string `json:"market"`
	Trader    string `json:"trader"`
	Intent    string `json:"intent"`
	Tick      int    `json:"tick"` // 用户视角, 在 intent 对应资产里的价格
	Price     string `json:"price"`
	Side      string `json:"book_side"`
	Quantity  uint64 `json:"quantity"`
	Filled    uint64 `json:"filled"`
	Remaining uint64 `json:"remaining"`
	TIF       string `json:"tif"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type FillView struct {
	Kind         string `json:"kind"`
	TakerOrderID uint64 `json:"taker_order_id"`
	MakerOrderID uint64 `json:"maker_order_id"`
	Taker        string `json:"taker"`
	Maker        string `json:"maker"`
	YesTick      int    `json:"yes_tick"`
	YesPrice     string `json:"yes_price"`
	Quantity     uint64 `json:"quantity"`
	Outcome      string `json:"outcome"`
	TakerPaid    uint64 `json:"taker_paid"`
	MakerPaid    uint64 `json:"maker_paid"`
}

type MarketView struct {
	ID         string `json:"id"`
	Collateral string `json:"collateral"`
	YesToken   string `json:"yes_token"`
	NoToken    string `json:"no_token"`
	EndTime    int64  `json:"end_time"`
	Paused     bool   `json:"paused"`
	Resolved   bool   `json:"resolved"`
	Outcome    string `json:"outcome"`
}

type QuoteView struct {
	Bid *LevelPrice `json:"bid"`
	Ask *LevelPrice `json:"ask"`
}

type LevelPrice struct {
	Tick  int    `json:"tick"`
	Price string `json:"price"`
}

func priceString(t matching.Tick) string {
	p, err := matching.TickToPrice(t)
	if err != nil {
		return ""
	}
	return p.StringFixed(2)
}

func outcome(wantsNo bool) string {
	if wantsNo {
		return "NO"
	}
	return "YES"
}

func orderView(o matching.Order) OrderView {
	return OrderView{
		ID:        o.ID,
		Market:    o.Market.Hex(),
		Trader:    o.Trader.Hex(),
		Intent:    o.Intent.String(),
		Tick:      int(o.UserTick()),
		Price:     priceString(o.UserTick()),
		Side:      o.Side().String(),
		Quantity:  o.Quantity,
		Filled:    o.Filled,
		Remaining: o.Remaining(),
		TIF:       o.TIF.String(),
		Status:    o.Status.String(),
		CreatedAt: o.CreatedAt,
	}
}

func fillViews(fs []matching.Fill) []FillView {
	out := make([]FillView, 0, len(fs))
	for _, f := range fs {
		out = append(out, FillView{
			Kind:         f.Kind.String(),
			TakerOrderID: f.TakerOrderID,
			MakerOrderID: f.MakerOrderID,
			Taker:        f.Taker.Hex(),
			Maker:        f.Maker.Hex(),
			YesTick:      int(f.Tick),
			YesPrice:     priceString(f.Tick),
			Quantity:     f.Quantity,
			Outcome:      outcome(f.WantsNo),
			TakerPaid:    f.TakerPaid,
			MakerPaid:    f.MakerPaid,
		})
	}
	return out
}

func marketView(m *market.Market) MarketView {
	return MarketView{
		ID:         m.ID.Hex(),
		Collateral: m.Collateral.Hex(),
		YesToken:   m.YesToken.Hex(),
		NoToken:    m.NoToken.Hex(),
		EndTime:    m.EndTime,
		Paused:     m.Paused,
		Resolved:   m.Resolved,
		Outcome:    m.Outcome.String(),
	}
}

func levelPrice(t matching.Tick, ok bool) *LevelPrice {
	if !ok {
		return nil
	}
	return &LevelPrice{Tick: int(t), Price: priceString(t)}
}
