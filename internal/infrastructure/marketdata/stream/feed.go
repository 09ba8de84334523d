package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
	"stockpilot/internal/infrastructure/svc"
)

// Feed keeps a live price book from the broker's realtime websocket and
// answers price reads from it, falling back to the REST source for
// instruments the stream has not ticked yet. Candle history always comes
// from the REST source.
type Feed struct {
	wsURL   string
	symbols []string
	rest    port.MarketData

	mu     sync.RWMutex
	latest map[string]tick
}

type tick struct {
	price float64
	ts    time.Time
}

// staleAfter bounds how old a streamed price may be before the REST
// source is consulted instead.
const staleAfter = 30 * time.Second

func NewFeed(wsURL string, symbols []string, rest port.MarketData) *Feed {
	return &Feed{
		wsURL:   strings.TrimSpace(wsURL),
		symbols: symbols,
		rest:    rest,
		latest:  make(map[string]tick),
	}
}

// Run maintains the websocket session until the context ends. Dial
// failures back off from 500ms up to 10s.
func (f *Feed) Run(ctx context.Context) {
	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, f.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("url", f.wsURL).Msg("quote stream dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("url", f.wsURL).Msg("quote stream connected")

		if err := f.subscribe(conn); err != nil {
			log.Error().Err(err).Msg("quote stream subscribe failed")
			_ = conn.Close()
			time.Sleep(backoff)
			continue
		}

		err = readLoop(ctx, conn, f.onMessage)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("quote stream disconnected, reconnecting")
		time.Sleep(backoff)
		backoff = minDur(backoff*2, maxBackoff)
	}
}

type subscribeMsg struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

type quoteMsg struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (f *Feed) subscribe(conn *websocket.Conn) error {
	return conn.WriteJSON(subscribeMsg{Op: "subscribe", Symbols: f.symbols})
}

func (f *Feed) onMessage(b []byte) {
	var msg quoteMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Error().Err(err).Msg("quote stream unmarshal failed")
		return
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(msg.Price), 64)
	if err != nil || price <= 0 || msg.Symbol == "" {
		return
	}
	f.mu.Lock()
	f.latest[msg.Symbol] = tick{price: price, ts: time.Now()}
	f.mu.Unlock()
}

func (f *Feed) GetPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	t, ok := f.latest[symbol]
	f.mu.RUnlock()
	if ok && time.Since(t.ts) < staleAfter {
		return t.price, nil
	}
	if f.rest != nil {
		return f.rest.GetPrice(ctx, symbol)
	}
	return 0, fmt.Errorf("%w: %s: no tick", svc.ErrNoQuote, symbol)
}

func (f *Feed) GetOHLCV(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	if f.rest == nil {
		return nil, fmt.Errorf("%w: %s: no history source", svc.ErrNoQuote, symbol)
	}
	return f.rest.GetOHLCV(ctx, symbol, limit)
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err == nil {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			}
			if err != nil {
				errCh <- err
				return
			}
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.MarketData = (*Feed)(nil)
