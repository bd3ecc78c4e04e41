package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"triarb/internal/domain/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quote(bid, ask string) model.Quote {
	return model.Quote{BestBid: d(bid), BestAsk: d(ask)}
}

func fixedEvaluator() *Evaluator {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Evaluator{
		now:   func() time.Time { return at },
		newID: func() string { return "opp-1" },
	}
}

func triangleCatalog(t *testing.T, ethBTCMin string) *Catalog {
	t.Helper()
	cat, rejected := NewCatalog([]model.Instrument{
		inst("BTC", "USDT", "0.0001"),
		inst("ETH", "BTC", ethBTCMin),
		inst("ETH", "USDT", "0.001"),
	})
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejected instruments: %+v", rejected)
	}
	return cat
}

func mustCycle(t *testing.T, cat *Catalog, c1, c2, c3 string) model.Cycle {
	t.Helper()
	cyc, ok := resolveCycle(cat, c1, c2, c3)
	if !ok {
		t.Fatalf("cycle %s>%s>%s does not resolve", c1, c2, c3)
	}
	return cyc
}

func params(start, minPct string) EvalParams {
	return EvalParams{StartAmount: d(start), MinProfitPercent: d(minPct)}
}

func TestEvaluateProfitableCycle(t *testing.T) {
	cat := triangleCatalog(t, "0.01")
	cyc := mustCycle(t, cat, "USDT", "BTC", "ETH")
	snap := model.PriceSnapshot{
		"BTCUSDT": quote("9.9", "10"),
		"ETHBTC":  quote("4.9", "5"),
		"ETHUSDT": quote("51", "51.5"),
	}

	opp, out := fixedEvaluator().Evaluate(cyc, cat, snap, params("100", "0.5"))
	if out != OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", out)
	}
	if !opp.FinalAmount.Equal(d("102")) {
		t.Errorf("final amount = %s, want 102", opp.FinalAmount)
	}
	if !opp.Profit.Equal(d("2")) {
		t.Errorf("profit = %s, want 2", opp.Profit)
	}
	if !opp.ProfitPercent.Equal(d("2")) {
		t.Errorf("profit percent = %s, want 2", opp.ProfitPercent)
	}
	if opp.ID != "opp-1" || opp.StartCurrency() != "USDT" {
		t.Errorf("unexpected id/start currency: %s %s", opp.ID, opp.StartCurrency())
	}

	wantQty := []string{"10", "2", "2"}
	wantSide := []model.Side{model.SideBuy, model.SideBuy, model.SideSell}
	for i, leg := range opp.Legs {
		if !leg.Quantity.Equal(d(wantQty[i])) {
			t.Errorf("leg %d quantity = %s, want %s", i, leg.Quantity, wantQty[i])
		}
		if leg.Side != wantSide[i] {
			t.Errorf("leg %d side = %s, want %s", i, leg.Side, wantSide[i])
		}
	}
	if !opp.Legs[2].Price.Equal(d("51")) {
		t.Errorf("sell leg should use bid, got %s", opp.Legs[2].Price)
	}
}

func TestEvaluateReverseDirection(t *testing.T) {
	cat := triangleCatalog(t, "0.01")
	cyc := mustCycle(t, cat, "USDT", "ETH", "BTC")
	snap := model.PriceSnapshot{
		"ETHUSDT": quote("49", "50"),
		"ETHBTC":  quote("0.2", "0.21"),
		"BTCUSDT": quote("260", "261"),
	}

	opp, out := fixedEvaluator().Evaluate(cyc, cat, snap, params("100", "0.5"))
	if out != OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", out)
	}
	if !opp.FinalAmount.Equal(d("104")) {
		t.Errorf("final amount = %s, want 104", opp.FinalAmount)
	}
	// buy 2 ETH, sell 2 ETH for 0.4 BTC, sell 0.4 BTC
	wantQty := []string{"2", "2", "0.4"}
	for i, leg := range opp.Legs {
		if !leg.Quantity.Equal(d(wantQty[i])) {
			t.Errorf("leg %d quantity = %s, want %s", i, leg.Quantity, wantQty[i])
		}
	}
}

func TestEvaluateRejections(t *testing.T) {
	base := model.PriceSnapshot{
		"BTCUSDT": quote("9.9", "10"),
		"ETHBTC":  quote("4.9", "5"),
		"ETHUSDT": quote("51", "51.5"),
	}
	cases := []struct {
		name      string
		ethBTCMin string
		snap      func() model.PriceSnapshot
		p         EvalParams
		want      Outcome
	}{
		{
			name:      "flat cycle",
			ethBTCMin: "0.01",
			snap: func() model.PriceSnapshot {
				s := clone(base)
				s["ETHUSDT"] = quote("50", "50.5")
				return s
			},
			p:    params("100", "0.5"),
			want: OutcomeBelowThreshold,
		},
		{
			name:      "profit equal to threshold",
			ethBTCMin: "0.01",
			snap:      func() model.PriceSnapshot { return clone(base) },
			p:         params("100", "2"),
			want:      OutcomeBelowThreshold,
		},
		{
			name:      "leg quantity below minimum",
			ethBTCMin: "3",
			snap:      func() model.PriceSnapshot { return clone(base) },
			p:         params("100", "0.5"),
			want:      OutcomeBelowMinimum,
		},
		{
			name:      "missing quote",
			ethBTCMin: "0.01",
			snap: func() model.PriceSnapshot {
				s := clone(base)
				delete(s, "ETHBTC")
				return s
			},
			p:    params("100", "0.5"),
			want: OutcomeNoData,
		},
		{
			name:      "zero bid",
			ethBTCMin: "0.01",
			snap: func() model.PriceSnapshot {
				s := clone(base)
				s["ETHUSDT"] = quote("0", "51.5")
				return s
			},
			p:    params("100", "0.5"),
			want: OutcomeNoData,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cat := triangleCatalog(t, tc.ethBTCMin)
			cyc := mustCycle(t, cat, "USDT", "BTC", "ETH")
			opp, out := fixedEvaluator().Evaluate(cyc, cat, tc.snap(), tc.p)
			if out != tc.want {
				t.Fatalf("outcome = %s, want %s", out, tc.want)
			}
			if opp != nil {
				t.Errorf("expected no opportunity, got %+v", opp)
			}
		})
	}
}

func TestEvaluateMinOrderAmount(t *testing.T) {
	btc := inst("BTC", "USDT", "0.0001")
	btc.MinOrderAmount = d("500")
	cat, _ := NewCatalog([]model.Instrument{btc, inst("ETH", "BTC", "0.01"), inst("ETH", "USDT", "0.001")})
	cyc := mustCycle(t, cat, "USDT", "BTC", "ETH")
	snap := model.PriceSnapshot{
		"BTCUSDT": quote("9.9", "10"),
		"ETHBTC":  quote("4.9", "5"),
		"ETHUSDT": quote("51", "51.5"),
	}

	if _, out := fixedEvaluator().Evaluate(cyc, cat, snap, params("100", "0.5")); out != OutcomeBelowMinimum {
		t.Errorf("outcome = %s, want below_minimum", out)
	}
	if _, out := fixedEvaluator().Evaluate(cyc, cat, snap, params("1000", "0.5")); out != OutcomeAccepted {
		t.Errorf("outcome = %s, want accepted", out)
	}
}

func TestEvaluateFeeRate(t *testing.T) {
	cat := triangleCatalog(t, "0.01")
	cyc := mustCycle(t, cat, "USDT", "BTC", "ETH")
	snap := model.PriceSnapshot{
		"BTCUSDT": quote("9.9", "10"),
		"ETHBTC":  quote("4.9", "5"),
		"ETHUSDT": quote("51", "51.5"),
	}
	p := params("100", "0.5")
	p.FeeRate = d("0.001")

	opp, out := fixedEvaluator().Evaluate(cyc, cat, snap, p)
	if out != OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", out)
	}
	// 102 * 0.999^3
	want := d("102").Mul(d("0.999")).Mul(d("0.999")).Mul(d("0.999"))
	if !opp.FinalAmount.Round(8).Equal(want.Round(8)) {
		t.Errorf("final amount = %s, want %s", opp.FinalAmount, want)
	}

	p.FeeRate = d("0.01")
	if _, out := fixedEvaluator().Evaluate(cyc, cat, snap, p); out != OutcomeBelowThreshold {
		t.Errorf("1%% fee should eat the profit, got %s", out)
	}
}

func clone(s model.PriceSnapshot) model.PriceSnapshot {
	out := make(model.PriceSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
