// Package binance implements the exchange gateway on the Binance USDT-M
// futures REST API via the go-binance SDK.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marlin/internal/gateway/exchange"
	"marlin/internal/logger"
	"marlin/internal/pkg/pricemath"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
)

const settlementAsset = "USDT"

type Gateway struct {
	cfg    Config
	client *futures.Client
}

var _ exchange.Gateway = (*Gateway)(nil)

func New(cfg Config) (*Gateway, error) {
	final := cfg.withDefaults()
	if strings.TrimSpace(final.APIKey) == "" || strings.TrimSpace(final.APISecret) == "" {
		return nil, fmt.Errorf("binance api credentials are required")
	}
	client := futures.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Gateway{cfg: final, client: client}, nil
}

// Prepare sets the configured leverage on every traded symbol. Run once at
// startup; Binance persists the setting per symbol. A rejection on one
// symbol (already set, or an open position pins it) is logged and does not
// block the rest.
func (g *Gateway) Prepare(ctx context.Context) error {
	for _, symbol := range g.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := g.client.NewChangeLeverageService().
			Symbol(symbol).
			Leverage(g.cfg.Leverage).
			Do(ctx)
		if err != nil {
			logger.Warnf("[binance] setting %dx leverage on %s failed: %v", g.cfg.Leverage, symbol, err)
			continue
		}
		logger.Infof("[binance] leverage set to %dx on %s", g.cfg.Leverage, symbol)
	}
	return nil
}

func (g *Gateway) GetAccountSnapshot(ctx context.Context) (exchange.AccountSnapshot, error) {
	balances, err := g.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return exchange.AccountSnapshot{}, fmt.Errorf("fetching futures balance failed: %w", err)
	}
	for _, b := range balances {
		if b == nil || b.Asset != settlementAsset {
			continue
		}
		wallet := parseFloat(b.Balance)
		unrealized := parseFloat(b.CrossUnPnl)
		free := parseFloat(b.AvailableBalance)
		total := wallet + unrealized
		return exchange.AccountSnapshot{
			Total:     total,
			Free:      free,
			Used:      total - free,
			UpdatedAt: time.Now(),
		}, nil
	}
	return exchange.AccountSnapshot{}, fmt.Errorf("no %s balance in futures account", settlementAsset)
}

func (g *Gateway) GetPositions(ctx context.Context) (map[string]exchange.PositionFields, error) {
	risks, err := g.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching position risk failed: %w", err)
	}
	out := make(map[string]exchange.PositionFields)
	for _, r := range risks {
		if r == nil {
			continue
		}
		amt := parseFloat(r.PositionAmt)
		if pricemath.Cmp(amt, 0) == 0 {
			continue
		}
		side := exchange.SideLong
		size := amt
		if amt < 0 {
			side = exchange.SideShort
			size = -amt
		}
		mark := parseFloat(r.MarkPrice)
		out[strings.ToUpper(r.Symbol)] = exchange.PositionFields{
			Symbol:        strings.ToUpper(r.Symbol),
			Side:          side,
			Size:          size,
			EntryPrice:    parseFloat(r.EntryPrice),
			MarkPrice:     mark,
			Leverage:      g.cfg.Leverage,
			MarginUsed:    pricemath.Margin(size, mark, g.cfg.Leverage),
			UnrealizedPnL: parseFloat(r.UnRealizedProfit),
			UpdatedAt:     time.Now(),
		}
	}
	return out, nil
}

func (g *Gateway) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching price for %s failed: %w", symbol, err)
	}
	for _, p := range prices {
		if p == nil {
			continue
		}
		price := parseFloat(p.Price)
		if price > 0 {
			return price, nil
		}
	}
	return 0, fmt.Errorf("no price returned for %s", symbol)
}

func (g *Gateway) PlaceOrder(ctx context.Context, symbol string, direction exchange.Direction, quantity float64) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("order quantity must be positive, got %v", quantity)
	}
	side, err := orderSide(direction)
	if err != nil {
		return "", err
	}
	order, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(quantity)).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("placing %s %s order failed: %w", direction, symbol, err)
	}
	logger.Infof("[binance] %s %s qty=%s order=%d", direction, symbol, formatQuantity(quantity), order.OrderID)
	return strconv.FormatInt(order.OrderID, 10), nil
}

// ClosePosition flattens the open position with a reduce-only market order
// in the opposite direction. A symbol with no open position is an error.
func (g *Gateway) ClosePosition(ctx context.Context, symbol string) (string, error) {
	positions, err := g.GetPositions(ctx)
	if err != nil {
		return "", err
	}
	pos, ok := positions[strings.ToUpper(symbol)]
	if !ok {
		return "", fmt.Errorf("no open position on %s", symbol)
	}
	side, err := orderSide(pos.Side.Opposite())
	if err != nil {
		return "", err
	}
	order, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(pos.Size)).
		ReduceOnly(true).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("closing %s failed: %w", symbol, err)
	}
	logger.Infof("[binance] closed %s %s qty=%s order=%d", pos.Side, symbol, formatQuantity(pos.Size), order.OrderID)
	return strconv.FormatInt(order.OrderID, 10), nil
}

func orderSide(d exchange.Direction) (futures.SideType, error) {
	switch d {
	case exchange.DirectionBuy:
		return futures.SideTypeBuy, nil
	case exchange.DirectionSell:
		return futures.SideTypeSell, nil
	}
	return "", fmt.Errorf("unknown order direction %q", d)
}

// newClientOrderID tags every order so fills are attributable in the
// exchange's own history. Binance caps the field at 36 characters.
func newClientOrderID() string {
	return "marlin-" + uuid.NewString()[:23]
}

func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
