// Package binanceclient implements the ports.DataSource interface on top of
// the Binance spot REST API, used to download historical candles for replay.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"backsim/internal/domain"
	"backsim/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

// Client fetches historical klines from Binance.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	interval   string
}

// Config holds configuration specific to the Binance client adapter.
// API keys are optional: kline endpoints are public.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Interval   string
	Logger     ports.Logger
}

// New creates a new Binance data source adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.Interval == "" {
		return nil, fmt.Errorf("%w: kline interval is required", ports.ErrConfigurationError)
	}

	binance.UseTestnet = cfg.UseTestnet
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	cfg.Logger.Info(context.Background(), "Binance data source configured", map[string]interface{}{
		"interval": cfg.Interval,
		"testnet":  cfg.UseTestnet,
	})

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		interval:   cfg.Interval,
	}, nil
}

// handleError translates Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		switch apiErr.Code {
		case -1121: // Invalid symbol
			c.logger.Error(ctx, err, "Binance API reported invalid symbol", fields)
			return fmt.Errorf("%s: %w: %s", operation, ports.ErrInvalidRequest, apiErr.Message)
		case -1120: // Invalid interval
			c.logger.Error(ctx, err, "Binance API reported invalid interval", fields)
			return fmt.Errorf("%s: %w: %s", operation, ports.ErrInvalidRequest, apiErr.Message)
		}
		c.logger.Error(ctx, err, "Binance API error", fields)
		return fmt.Errorf("%s: binance API error %d: %s", operation, apiErr.Code, apiErr.Message)
	}

	c.logger.Error(ctx, err, "Binance request failed", fields)
	return fmt.Errorf("%s: %w", operation, err)
}

// LoadBars fetches all klines for the symbol between start and end,
// paginating past the per-request limit. Implements ports.DataSource.
func (c *Client) LoadBars(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Bar, error) {
	op := "LoadBars"
	const maxLimit = 1000
	var allBars []*domain.Bar
	from := start

	for {
		klines, err := c.spotClient.NewKlinesService().
			Symbol(symbol).
			Interval(c.interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			bar, err := translateKline(bk, symbol, c.interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
			}
			allBars = append(allBars, bar)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime)
		if from.After(end) || len(klines) < maxLimit {
			break
		}
	}

	c.logger.Info(ctx, "Historical bars downloaded", map[string]interface{}{
		"symbol":   symbol,
		"interval": c.interval,
		"bars":     len(allBars),
	})
	return allBars, nil
}

// translateKline converts a Binance kline into a domain bar.
func translateKline(bk *binance.Kline, symbol, interval string) (*domain.Bar, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Bar{
		Timestamp: time.UnixMilli(bk.OpenTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
