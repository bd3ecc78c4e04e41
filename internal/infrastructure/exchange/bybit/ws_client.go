package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"triarb/internal/application/port"
	"triarb/internal/domain/model"
)

const (
	orderbookTopicPrefix = "orderbook.1."
	subscribeBatchSize   = 10 // Bybit 每个 subscribe 请求最多 10 个 args
	pingInterval         = 20 * time.Second
	readTimeout          = 60 * time.Second
)

var ErrStreamNotReady = errors.New("bybit stream has no fresh quotes")

var _ port.PriceSource = (*StreamPriceSource)(nil)

// StreamPriceSource keeps best bid/ask per symbol from the public spot
// orderbook.1 stream and serves FetchTickers from that cache. Symbols are
// subscribed lazily as they are requested.
type StreamPriceSource struct {
	wsURL  string
	maxAge time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	quotes map[string]streamQuote
	want   map[string]struct{}

	resub  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

type streamQuote struct {
	bid decimal.Decimal
	ask decimal.Decimal
	at  time.Time
	ts  int64
}

func NewStreamPriceSource(wsURL string, maxAge time.Duration) *StreamPriceSource {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &StreamPriceSource{
		wsURL:  strings.TrimSpace(wsURL),
		maxAge: maxAge,
		now:    time.Now,
		quotes: make(map[string]streamQuote),
		want:   make(map[string]struct{}),
		resub:  make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *StreamPriceSource) Name() string { return "bybit-stream" }

// Close 断开连接并等待后台协程退出
func (s *StreamPriceSource) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *StreamPriceSource) FetchTickers(ctx context.Context, symbols []string) (model.PriceSnapshot, error) {
	s.mu.Lock()
	added := false
	for _, sym := range symbols {
		if _, ok := s.want[sym]; !ok {
			s.want[sym] = struct{}{}
			added = true
		}
	}
	cutoff := s.now().Add(-s.maxAge)
	snap := make(model.PriceSnapshot, len(symbols))
	for _, sym := range symbols {
		q, ok := s.quotes[sym]
		if !ok || q.at.Before(cutoff) {
			continue
		}
		mq := model.Quote{BestBid: q.bid, BestAsk: q.ask, Ts: q.ts}
		if mq.Valid() {
			snap[sym] = mq
		}
	}
	s.mu.Unlock()

	if added {
		select {
		case s.resub <- struct{}{}:
		default:
		}
	}
	if len(snap) == 0 && len(symbols) > 0 {
		return nil, ErrStreamNotReady
	}
	return snap, nil
}

type subReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type orderbookMsg struct {
	Topic string `json:"topic"`
	Type  string `json:"type"` // snapshot | delta
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol string      `json:"s"`
		Bids   [][2]string `json:"b"`
		Asks   [][2]string `json:"a"`
	} `json:"data"`

	Success *bool  `json:"success,omitempty"`
	RetMsg  string `json:"ret_msg,omitempty"`
	Op      string `json:"op,omitempty"`
}

func (s *StreamPriceSource) run(ctx context.Context) {
	defer close(s.done)

	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		log.Info().Str("source", s.Name()).Str("url", s.wsURL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, s.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("source", s.Name()).Err(err).Msg("ws dial failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		err = s.session(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("source", s.Name()).Err(err).Msg("ws disconnected, reconnecting")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = minDur(backoff*2, maxBackoff)
	}
}

// session 单个连接的生命周期：订阅、读消息、心跳、增量订阅。写操作只在本协程。
func (s *StreamPriceSource) session(ctx context.Context, conn *websocket.Conn) error {
	subscribed := make(map[string]struct{})
	if err := s.subscribeMissing(conn, subscribed); err != nil {
		return err
	}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			s.handleMessage(b)
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-s.resub:
			if err := s.subscribeMissing(conn, subscribed); err != nil {
				return err
			}
		case <-pingTicker.C:
			if err := conn.WriteJSON(subReq{Op: "ping"}); err != nil {
				return err
			}
		}
	}
}

func (s *StreamPriceSource) subscribeMissing(conn *websocket.Conn, subscribed map[string]struct{}) error {
	s.mu.RLock()
	var topics []string
	for sym := range s.want {
		if _, ok := subscribed[sym]; !ok {
			topics = append(topics, orderbookTopicPrefix+sym)
		}
	}
	s.mu.RUnlock()
	sort.Strings(topics)

	for _, batch := range batches(topics, subscribeBatchSize) {
		if err := conn.WriteJSON(subReq{Op: "subscribe", Args: batch}); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		for _, t := range batch {
			subscribed[strings.TrimPrefix(t, orderbookTopicPrefix)] = struct{}{}
		}
	}
	if len(topics) > 0 {
		log.Debug().Str("source", s.Name()).Int("topics", len(topics)).Msg("ws subscribed")
	}
	return nil
}

func (s *StreamPriceSource) handleMessage(b []byte) {
	var msg orderbookMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Error().Str("source", s.Name()).Err(err).Msg("json unmarshal failed")
		return
	}

	// ack / pong
	if msg.Success != nil {
		if !*msg.Success {
			log.Error().Str("source", s.Name()).Str("op", msg.Op).Str("ret_msg", msg.RetMsg).Msg("ws request not success")
		}
		return
	}
	if !strings.HasPrefix(msg.Topic, orderbookTopicPrefix) {
		return
	}
	sym := msg.Data.Symbol
	if sym == "" {
		sym = strings.TrimPrefix(msg.Topic, orderbookTopicPrefix)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.quotes[sym]
	if msg.Type == "snapshot" {
		q = streamQuote{}
	}
	if v, ok := topLevel(msg.Data.Bids); ok {
		q.bid = v
	}
	if v, ok := topLevel(msg.Data.Asks); ok {
		q.ask = v
	}
	q.at = s.now()
	q.ts = msg.Ts
	s.quotes[sym] = q
}

// topLevel 解析第一档；数量为 0 表示该档被删除，价格置零（视为不可用）
func topLevel(levels [][2]string) (decimal.Decimal, bool) {
	if len(levels) == 0 {
		return decimal.Zero, false
	}
	size, err := decimal.NewFromString(levels[0][1])
	if err != nil {
		return decimal.Zero, false
	}
	if size.IsZero() {
		return decimal.Zero, true
	}
	px, err := decimal.NewFromString(levels[0][0])
	if err != nil {
		return decimal.Zero, false
	}
	return px, true
}

func batches(items []string, size int) [][]string {
	var out [][]string
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
