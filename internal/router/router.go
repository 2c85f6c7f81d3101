// Package router implements the Router collaborator: a sushi-style
// aggregator quote cache filled by Put, which the optional background
// WebSocket price feed (Run) calls for each price message. Update, the
// once-per-batch hook, does not fetch quotes itself.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
)

const (
	maxReconnectWait = 30 * time.Second
	readTimeout      = 90 * time.Second
	pingInterval     = 50 * time.Second
)

// CacheEntry is one quote in the router's sell-buy cache. Misses is a small
// integer counter so a pair that keeps failing to quote can be deprioritized
// without ever needing to be evicted.
type CacheEntry struct {
	Price     *uint256.Int
	Profit    *uint256.Int
	UpdatedAt time.Time
	Misses    uint8
}

// cacheKey mirrors the external interface's documented key shape:
// "{sellLower}-{buyLower}".
func cacheKey(sell, buy string) string {
	return strings.ToLower(sell) + "-" + strings.ToLower(buy)
}

// Router maintains the quote cache and a best-effort background price feed.
// sushi.update(block) in the spec corresponds to Update below; the cache is
// process-wide for the lifetime of the solver's SharedState.
type Router struct {
	feedURL string
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]CacheEntry
}

// New builds a Router. feedURL may be empty, in which case only explicit
// Update calls populate the cache (no background feed runs).
func New(feedURL string, logger *slog.Logger) *Router {
	return &Router{
		feedURL: feedURL,
		logger:  logger.With("component", "router"),
		cache:   make(map[string]CacheEntry),
	}
}

// Get returns the cached quote for (sell, buy), if any.
func (r *Router) Get(sell, buy string) (CacheEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[cacheKey(sell, buy)]
	return e, ok
}

// Update is the refresh hook for the given block. It makes no aggregator
// call and leaves the cache unchanged: it logs the request at Debug level
// and returns nil.
func (r *Router) Update(ctx context.Context, block uint64) error {
	// The concrete aggregator HTTP call lives outside core scope; this is
	// the hook the scheduler calls once per batch (RoundScheduler §4.7).
	r.logger.Debug("router cache refresh requested", "block", block)
	return nil
}

// Put records a fresh quote, clearing its miss counter.
func (r *Router) Put(sell, buy string, price, profit *uint256.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[cacheKey(sell, buy)] = CacheEntry{Price: price, Profit: profit, UpdatedAt: time.Now()}
}

// RecordMiss increments a pair's miss counter without evicting it —
// last-writer-wins, misses tolerated per the §5 shared-cache policy.
func (r *Router) RecordMiss(sell, buy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := cacheKey(sell, buy)
	e := r.cache[k]
	e.Misses++
	r.cache[k] = e
}

// priceFeedMessage is the minimal shape of a price-stream update the
// background feed understands.
type priceFeedMessage struct {
	Sell   string `json:"sell"`
	Buy    string `json:"buy"`
	Price  string `json:"price"`
	Profit string `json:"profit"`
}

// Run maintains the optional background WebSocket price feed with
// exponential backoff reconnect, adapted from the teacher bot's market-data
// WSFeed. Blocks until ctx is cancelled; a no-op when feedURL is empty.
func (r *Router) Run(ctx context.Context) error {
	if r.feedURL == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	backoff := time.Second
	for {
		err := r.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Warn("router price feed disconnected, reconnecting",
			"error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (r *Router) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.feedURL, nil)
	if err != nil {
		return fmt.Errorf("dial price feed: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg priceFeedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Debug("malformed price feed message", "error", err)
			continue
		}
		price, ok := new(uint256.Int).SetString(msg.Price, 10)
		if !ok {
			continue
		}
		profit, ok := new(uint256.Int).SetString(msg.Profit, 10)
		if !ok {
			profit = uint256.NewInt(0)
		}
		r.Put(msg.Sell, msg.Buy, price, profit)
	}
}
