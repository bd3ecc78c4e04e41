package pricesource

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"triarb/internal/application/port"
)

// Options 构造价格源所需的参数
type Options struct {
	RestURL     string
	WsURL       string
	HTTPTimeout time.Duration
	MaxAge      time.Duration // 流式报价最长有效期
}

// Factory 由各交易所包的 init() 注册
type Factory func(opts Options) (port.PriceSource, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Key 注册键，如 "bybit/rest"、"bybit/stream"
func Key(exchange, kind string) string { return exchange + "/" + kind }

// Register 注册一个价格源工厂，重复注册会覆盖
func Register(key string, factory Factory) {
	if factory == nil {
		log.Warn().Str("source", key).Msg("invalid price source factory")
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[key]; exists {
		log.Warn().Str("source", key).Msg("price source factory already registered, overwriting")
	}
	registry[key] = factory
}

func Get(key string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := registry[key]
	return factory, ok
}

// New 按 key 构造价格源
func New(key string, opts Options) (port.PriceSource, error) {
	factory, ok := Get(key)
	if !ok {
		return nil, fmt.Errorf("price source %q not registered (have %v)", key, Keys())
	}
	return factory(opts)
}

func Keys() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
