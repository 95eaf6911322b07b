package oms

import (
	"sync"

	"github.com/erdoganonur/bist-trading-platform-sub007/pkg/quant"
)

// PriceCache holds the last trade price per symbol, fed by the ticker
// stream and consulted by the coordinator's limit-price collar check.
type PriceCache struct {
	mu   sync.RWMutex
	last map[string]quant.PriceMicros
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{last: make(map[string]quant.PriceMicros)}
}

// SetLastPrice records the latest trade for a symbol.
func (p *PriceCache) SetLastPrice(symbol string, price quant.PriceMicros, ts quant.TimeStamp) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	p.last[symbol] = price
	p.mu.Unlock()
}

// Last returns the most recent trade price, if any.
func (p *PriceCache) Last(symbol string) (quant.PriceMicros, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.last[symbol]
	return price, ok
}
