package fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

var errNoResponse = errors.New("colly fetch produced no response")

// CollyConfig tunes the colly-backed transport.
type CollyConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxBodyBytes   int
	MaxConns       int
}

// CollyTransport performs single GETs through a colly collector. Every call
// clones the base collector so concurrent callers never share callbacks.
type CollyTransport struct {
	base   *colly.Collector
	logger *zap.Logger
}

// NewCollyTransport builds the base collector. Status codes other than 2xx
// are surfaced as responses rather than errors so the Fetcher can classify them.
func NewCollyTransport(cfg CollyConfig, logger *zap.Logger) *CollyTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []colly.CollectorOption{}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true
	base.ParseHTTPErrorResponse = true
	base.MaxBodySize = cfg.MaxBodyBytes
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       max(1, cfg.MaxConns) * 2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	if cfg.RequestTimeout > 0 {
		base.SetRequestTimeout(cfg.RequestTimeout)
	}
	return &CollyTransport{base: base, logger: logger}
}

// Do implements Transport.
func (t *CollyTransport) Do(ctx context.Context, rawURL string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	collector := t.base.Clone()
	collector.Context = ctx

	var (
		resp Response
		got  bool
	)
	collector.OnResponse(func(r *colly.Response) {
		resp = Response{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		got = true
	})

	if err := collector.Visit(rawURL); err != nil {
		t.logger.Debug("Colly visit failed", zap.String("url", rawURL), zap.Error(err))
		return Response{}, err
	}
	if !got {
		return Response{}, errNoResponse
	}
	return resp, nil
}
