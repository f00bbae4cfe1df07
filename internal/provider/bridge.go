package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"levelflow/config"
	"levelflow/logger"
)

// Dialer opens a websocket connection. Tests substitute their own.
type Dialer func(ctx context.Context, url string) (*websocket.Conn, error)

// BridgeProvider fetches CFD quotes from a terminal bridge over a
// request/response websocket. The connection is dialed lazily and reused
// across calls; any transport error drops it so the next call redials.
type BridgeProvider struct {
	url     string
	timeout time.Duration
	dial    Dialer
	limiter *rate.Limiter

	mu   sync.Mutex
	conn *websocket.Conn

	log *logger.Log
}

type bridgeRequest struct {
	Op     string `json:"op"`
	Symbol string `json:"symbol"`
}

type bridgeTick struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	OK     bool    `json:"ok"`
}

// NewBridgeProvider creates a provider from the CFD provider config.
func NewBridgeProvider(cfg config.CFDProviderConfig) *BridgeProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	interval := cfg.MinCallInterval
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	return &BridgeProvider{
		url:     cfg.URL,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
		log: logger.GetLogger(),
	}
}

// SetDialer replaces the connection factory. Intended for tests.
func (p *BridgeProvider) SetDialer(d Dialer) {
	p.dial = d
}

func (p *BridgeProvider) Name() string { return "bridge" }

// GetPrice asks the bridge for one tick of a symbol. The usable price is
// the bid/ask midpoint when both sides are quoted, otherwise the last
// traded price. A tick with ok=false or no positive price reports a miss.
func (p *BridgeProvider) GetPrice(ctx context.Context, symbol string) (float64, bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connection(ctx)
	if err != nil {
		return 0, false, err
	}

	deadline := time.Now().Add(p.timeout)
	if err := conn.SetWriteDeadline(deadline); err != nil {
		p.drop()
		return 0, false, err
	}
	if err := conn.WriteJSON(bridgeRequest{Op: "tick", Symbol: symbol}); err != nil {
		p.drop()
		return 0, false, fmt.Errorf("bridge request for %s: %w", symbol, err)
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		p.drop()
		return 0, false, err
	}
	var tick bridgeTick
	if err := conn.ReadJSON(&tick); err != nil {
		p.drop()
		return 0, false, fmt.Errorf("bridge response for %s: %w", symbol, err)
	}

	if !tick.OK {
		return 0, false, nil
	}

	price := tick.Last
	if tick.Bid > 0 && tick.Ask > 0 {
		price = (tick.Bid + tick.Ask) / 2
	}
	if price <= 0 {
		return 0, false, nil
	}

	p.log.WithComponent("bridge").WithFields(logger.Fields{
		"symbol": symbol,
		"bid":    tick.Bid,
		"ask":    tick.Ask,
		"price":  price,
	}).Debug("tick received")

	return price, true, nil
}

// Close shuts the bridge connection down. Safe to call when never dialed.
func (p *BridgeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// connection returns the live connection, dialing if needed. Caller holds
// the mutex.
func (p *BridgeProvider) connection(ctx context.Context) (*websocket.Conn, error) {
	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := p.dial(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", p.url, err)
	}
	p.log.WithComponent("bridge").WithFields(logger.Fields{
		"url": p.url,
	}).Info("bridge connected")
	p.conn = conn
	return conn, nil
}

// drop discards a connection after a transport error. Caller holds the
// mutex.
func (p *BridgeProvider) drop() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
