// =============================================
// File: internal/partner/client.go
// =============================================

// Package partner talks to the Pharos partner REST API: wallet login, daily
// check-in and faucet claim.
package partner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pharos-bot/internal/logger"
	"github.com/rovshanmuradov/pharos-bot/internal/retry"
)

var (
	// ErrRateLimited is returned when the API asks to slow down.
	ErrRateLimited = errors.New("rate limited by partner api")
	// ErrLoginRejected is a terminal login failure.
	ErrLoginRejected = errors.New("login rejected")
	// ErrRequestFailed is a non-success answer from sign-in or faucet.
	ErrRequestFailed = errors.New("partner api request failed")

	errTransient = errors.New("transient partner api failure")
)

// Config holds endpoint and behaviour settings.
type Config struct {
	BaseURL            string
	InviteCode         string
	LoginMessage       string
	UserAgent          string
	Referer            string
	LoginAttempts      int
	LoginDelay         time.Duration
	RateLimitMarkers   []string
	AlreadyDoneMarkers []string
}

// SignFunc signs message with the account key and returns a hex signature.
type SignFunc func(message string) (string, error)

// Result is the outcome of a single-attempt call.
type Result struct {
	AlreadyDone bool
	Message     string
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		JWT string `json:"jwt"`
	} `json:"data"`
}

// Client is bound to one account's HTTP client (and therefore its proxy).
type Client struct {
	http   *http.Client
	config Config
	logger *zap.Logger
}

func NewClient(httpClient *http.Client, config Config, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.LoginAttempts <= 0 {
		config.LoginAttempts = 1
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		http:   httpClient,
		config: config,
		logger: log.Named("partner"),
	}
}

// Login signs the login message afresh on every attempt and exchanges it for
// a bearer token. Transport, decode and rate-limit failures are retried with a
// fixed delay; any other rejection stops immediately.
func (c *Client) Login(ctx context.Context, address string, sign SignFunc) (string, error) {
	log := logger.WithOperation(logger.WithAccount(c.logger, address), "login")

	policy := retry.Policy{
		MaxAttempts: c.config.LoginAttempts,
		Delay:       c.config.LoginDelay,
		Retryable: func(err error) bool {
			return errors.Is(err, errTransient) || errors.Is(err, ErrRateLimited)
		},
		OnRetry: func(attempt int, err error, next time.Duration) {
			log.Warn("Login attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.config.LoginAttempts),
				zap.Duration("delay", next),
				zap.Error(err))
		},
	}

	token, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		signature, err := sign(c.config.LoginMessage)
		if err != nil {
			return "", retry.Permanent(fmt.Errorf("failed to sign login message: %w", err))
		}
		query := url.Values{}
		query.Set("address", address)
		query.Set("signature", signature)
		query.Set("invite_code", c.config.InviteCode)

		resp, err := c.post(ctx, "/user/login", query, "")
		if err != nil {
			return "", err
		}
		if resp.Code != 0 {
			if c.matches(resp.Msg, c.config.RateLimitMarkers) {
				return "", fmt.Errorf("%w: %s", ErrRateLimited, resp.Msg)
			}
			return "", fmt.Errorf("%w: code %d: %s", ErrLoginRejected, resp.Code, resp.Msg)
		}
		if resp.Data.JWT == "" {
			return "", fmt.Errorf("%w: empty token in response", ErrLoginRejected)
		}
		return resp.Data.JWT, nil
	})
	if err != nil {
		log.Error("Login failed", zap.Error(err))
		return "", err
	}
	log.Info("Logged in")
	return token, nil
}

// SignIn performs the daily check-in.
func (c *Client) SignIn(ctx context.Context, address, token string) (Result, error) {
	return c.daily(ctx, "/sign/in", "check-in", address, token)
}

// ClaimFaucet claims the daily faucet allowance.
func (c *Client) ClaimFaucet(ctx context.Context, address, token string) (Result, error) {
	return c.daily(ctx, "/faucet/daily", "faucet", address, token)
}

func (c *Client) daily(ctx context.Context, path, name, address, token string) (Result, error) {
	log := logger.WithAccount(c.logger, address)
	query := url.Values{}
	query.Set("address", address)

	resp, err := c.post(ctx, path, query, token)
	if err != nil {
		log.Warn("Request failed", zap.String("call", name), zap.Error(err))
		return Result{}, err
	}
	if resp.Code == 0 {
		log.Info("Request succeeded", zap.String("call", name), zap.String("msg", resp.Msg))
		return Result{Message: resp.Msg}, nil
	}
	if c.matches(resp.Msg, c.config.AlreadyDoneMarkers) {
		log.Info("Already done today", zap.String("call", name), zap.String("msg", resp.Msg))
		return Result{AlreadyDone: true, Message: resp.Msg}, nil
	}
	return Result{Message: resp.Msg}, fmt.Errorf("%w: %s: code %d: %s", ErrRequestFailed, name, resp.Code, resp.Msg)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, token string) (*apiResponse, error) {
	endpoint := c.config.BaseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Referer != "" {
		req.Header.Set("Referer", c.config.Referer)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTransient, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", errTransient, err)
	}

	if res.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: http %d", ErrRateLimited, res.StatusCode)
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: http %d", errTransient, res.StatusCode)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response (http %d): %v", errTransient, res.StatusCode, err)
	}
	return &resp, nil
}

func (c *Client) matches(msg string, markers []string) bool {
	lower := strings.ToLower(msg)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
