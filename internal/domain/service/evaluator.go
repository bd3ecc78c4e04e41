package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"triarb/internal/domain/model"
)

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

// Outcome 单个循环一次评估的结果
type Outcome int

const (
	OutcomeAccepted       Outcome = iota
	OutcomeNoData                 // 缺少报价或交易对，本轮跳过
	OutcomeBelowThreshold         // 利润率未超过阈值
	OutcomeBelowMinimum           // 利润达标但某条腿低于最小下单量
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeNoData:
		return "no_data"
	case OutcomeBelowThreshold:
		return "below_threshold"
	case OutcomeBelowMinimum:
		return "below_minimum"
	default:
		return "unknown"
	}
}

// EvalParams 每轮开始时读取一次的可调参数
type EvalParams struct {
	StartAmount      decimal.Decimal // 起始金额 S（c1 计价）
	MinProfitPercent decimal.Decimal // 最小利润率 %，严格大于才接受
	FeeRate          decimal.Decimal // 每条腿的 taker 手续费率，0 表示忽略
}

// Evaluator 三角套利评估器，无状态、无副作用
type Evaluator struct {
	now   func() time.Time
	newID func() string
}

func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now, newID: uuid.NewString}
}

// Evaluate composes the three legs of c against snap. It returns an
// opportunity only with OutcomeAccepted. Missing quotes or instruments are
// reported as OutcomeNoData and are not errors.
func (e *Evaluator) Evaluate(c model.Cycle, cat *Catalog, snap model.PriceSnapshot, p EvalParams) (*model.Opportunity, Outcome) {
	if cat == nil || !p.StartAmount.IsPositive() {
		return nil, OutcomeNoData
	}
	feeMul := decOne.Sub(p.FeeRate)
	if !feeMul.IsPositive() {
		return nil, OutcomeNoData
	}

	var (
		legs      [3]model.OpportunityLeg
		mins      [3]model.Instrument
		notionals [3]decimal.Decimal
	)
	amount := p.StartAmount
	for i, leg := range c.Legs {
		inst, ok := cat.Instrument(leg.Symbol)
		if !ok {
			return nil, OutcomeNoData
		}
		q, ok := snap.Get(leg.Symbol)
		if !ok {
			return nil, OutcomeNoData
		}

		ol := model.OpportunityLeg{Leg: leg, AmountIn: amount, MinQuantity: inst.MinOrderQty}
		switch leg.Side {
		case model.SideBuy:
			// rate = ask: spend quote, receive base
			ol.Price = q.BestAsk
			ol.AmountOut = amount.Div(q.BestAsk)
			ol.Quantity = ol.AmountOut
			notionals[i] = amount
		case model.SideSell:
			// rate = 1/bid: spend base, receive quote
			ol.Price = q.BestBid
			ol.AmountOut = amount.Mul(q.BestBid)
			ol.Quantity = amount
			notionals[i] = ol.AmountOut
		default:
			return nil, OutcomeNoData
		}
		ol.AmountOut = ol.AmountOut.Mul(feeMul)
		if !ol.AmountOut.IsPositive() {
			return nil, OutcomeNoData
		}

		legs[i] = ol
		mins[i] = inst
		amount = ol.AmountOut
	}

	profit := amount.Sub(p.StartAmount)
	profitPct := profit.Div(p.StartAmount).Mul(decHundred)
	if !profitPct.GreaterThan(p.MinProfitPercent) {
		return nil, OutcomeBelowThreshold
	}

	for i := range legs {
		if legs[i].Quantity.LessThan(mins[i].MinOrderQty) {
			return nil, OutcomeBelowMinimum
		}
		if mins[i].MinOrderAmount.IsPositive() && notionals[i].LessThan(mins[i].MinOrderAmount) {
			return nil, OutcomeBelowMinimum
		}
	}

	return &model.Opportunity{
		ID:            e.newID(),
		Cycle:         c,
		StartAmount:   p.StartAmount,
		FinalAmount:   amount,
		Profit:        profit,
		ProfitPercent: profitPct,
		Legs:          legs,
		DetectedAt:    e.now(),
	}, OutcomeAccepted
}
