// Package remote implements domain.RemoteClient over the marketplace's
// JSON/HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/rs/zerolog"
)

const requestQueueSize = 64

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("remote client is closed")

// Config configures a Client.
type Config struct {
	BaseURL        string
	Token          string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// MinInterval is the minimum delay between two requests. Zero disables it.
	MinInterval time.Duration
}

type requestJob struct {
	ctx      context.Context
	method   string
	path     string
	body     interface{}
	out      interface{}
	resultCh chan error
}

// Client sends every request through a single worker, so an account never
// has two requests in flight.
type Client struct {
	baseURL     string
	token       string
	minInterval time.Duration
	httpClient  *http.Client
	log         zerolog.Logger

	requestQueue chan requestJob
	stopChan     chan struct{}
	workerDone   chan struct{}
	once         sync.Once
}

// NewClient creates a client and starts its worker.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout

	c := &Client{
		baseURL:      cfg.BaseURL,
		token:        cfg.Token,
		minInterval:  cfg.MinInterval,
		httpClient:   &http.Client{Timeout: cfg.ReadTimeout, Transport: transport},
		log:          log.With().Str("component", "remote-client").Logger(),
		requestQueue: make(chan requestJob, requestQueueSize),
		stopChan:     make(chan struct{}),
		workerDone:   make(chan struct{}),
	}
	go c.worker()
	return c
}

// Close stops the worker after the queued requests are processed.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.stopChan)
		<-c.workerDone
	})
}

func (c *Client) FetchLoan(ctx context.Context, id int64) (domain.Loan, error) {
	var loan domain.Loan
	if err := c.do(ctx, http.MethodGet, "/loans/"+strconv.FormatInt(id, 10), nil, &loan); err != nil {
		return domain.Loan{}, fmt.Errorf("failed to fetch loan %d: %w", id, err)
	}
	return loan, nil
}

type walletResponse struct {
	AvailableBalance domain.Money `json:"availableBalance"`
}

func (c *Client) FetchAccountBalance(ctx context.Context) (domain.Money, error) {
	var w walletResponse
	if err := c.do(ctx, http.MethodGet, "/users/me/wallet", nil, &w); err != nil {
		return domain.Zero, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return w.AvailableBalance, nil
}

type ratingExposure struct {
	Rating   domain.Rating `json:"rating"`
	Invested domain.Money  `json:"invested"`
	AtRisk   domain.Money  `json:"atRisk"`
}

type statisticsResponse struct {
	RiskPortfolio []ratingExposure `json:"riskPortfolio"`
}

func (c *Client) FetchExposure(ctx context.Context) (map[domain.Rating]domain.Amounts, error) {
	var s statisticsResponse
	if err := c.do(ctx, http.MethodGet, "/users/me/statistics", nil, &s); err != nil {
		return nil, fmt.Errorf("failed to fetch exposure: %w", err)
	}
	out := make(map[domain.Rating]domain.Amounts, len(s.RiskPortfolio))
	for _, e := range s.RiskPortfolio {
		out[e.Rating] = out[e.Rating].Add(domain.Amounts{Invested: e.Invested, AtRisk: e.AtRisk})
	}
	return out, nil
}

type soldResponse struct {
	LoanIDs []int64 `json:"loanIds"`
}

func (c *Client) FetchSoldPositions(ctx context.Context, filter domain.SoldFilter) ([]int64, error) {
	path := "/users/me/investments/sold"
	if filter.SinceUnix > 0 {
		path += "?since=" + strconv.FormatInt(filter.SinceUnix, 10)
	}
	var s soldResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		return nil, fmt.Errorf("failed to fetch sold positions: %w", err)
	}
	return s.LoanIDs, nil
}

func (c *Client) FetchMarketplace(ctx context.Context) ([]domain.MarketplaceItem, error) {
	var items []domain.MarketplaceItem
	if err := c.do(ctx, http.MethodGet, "/marketplace", nil, &items); err != nil {
		return nil, fmt.Errorf("failed to fetch marketplace: %w", err)
	}
	return items, nil
}

func (c *Client) FetchRestrictions(ctx context.Context) (domain.Restrictions, error) {
	var r domain.Restrictions
	if err := c.do(ctx, http.MethodGet, "/users/me/restrictions", nil, &r); err != nil {
		return domain.Restrictions{}, fmt.Errorf("failed to fetch restrictions: %w", err)
	}
	return r, nil
}

type operationRequest struct {
	LoanID int64        `json:"loanId"`
	Amount domain.Money `json:"amount"`
}

// SubmitOperation maps each operation kind to its endpoint.
func (c *Client) SubmitOperation(ctx context.Context, op domain.Operation) error {
	var path string
	switch op.Kind {
	case domain.OperationInvest:
		path = "/marketplace/investment"
	case domain.OperationPurchase:
		path = "/smp/participations/" + strconv.FormatInt(op.ItemID, 10) + "/purchase"
	case domain.OperationSell:
		path = "/smp/participations/" + strconv.FormatInt(op.ItemID, 10) + "/sell"
	default:
		return fmt.Errorf("unknown operation kind %q: %w", op.Kind, domain.ErrInvariant)
	}

	body := operationRequest{LoanID: op.LoanID, Amount: op.Amount}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to submit %s of item %d: %w", op.Kind, op.ItemID, err)
	}
	return nil
}

// do queues a request and waits for the worker to process it.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	job := requestJob{
		ctx:      ctx,
		method:   method,
		path:     path,
		body:     body,
		out:      out,
		resultCh: make(chan error, 1),
	}

	select {
	case <-c.stopChan:
		return ErrClosed
	default:
	}

	select {
	case c.requestQueue <- job:
	case <-c.stopChan:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-job.resultCh:
		return err
	case <-c.workerDone:
		select {
		case err := <-job.resultCh:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		// The worker still delivers into the buffered channel and moves on.
		return ctx.Err()
	}
}

// worker processes requests one at a time.
func (c *Client) worker() {
	defer close(c.workerDone)

	var last time.Time
	process := func(job requestJob) {
		if err := job.ctx.Err(); err != nil {
			job.resultCh <- err
			return
		}
		if c.minInterval > 0 && !last.IsZero() {
			if wait := c.minInterval - time.Since(last); wait > 0 {
				time.Sleep(wait)
			}
		}
		job.resultCh <- c.send(job.ctx, job.method, job.path, job.body, job.out)
		last = time.Now()
	}

	for {
		select {
		case <-c.stopChan:
			for {
				select {
				case job := <-c.requestQueue:
					process(job)
				default:
					return
				}
			}
		case job := <-c.requestQueue:
			process(job)
		}
	}
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %v: %w", err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v: %w", err, domain.ErrTransient)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := newStatusError(resp, data)
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Str("response_body", statusErr.Body).
			Str("method", method).
			Str("url", url).
			Msg("API returned non-2xx status")
		return statusErr
	}

	c.log.Debug().Str("method", method).Str("path", path).Dur("duration", time.Since(start)).Msg("Request completed")

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
