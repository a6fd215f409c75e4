package partner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:            baseURL,
		InviteCode:         "INVITE",
		LoginMessage:       "pharos",
		UserAgent:          "test-agent",
		Referer:            "https://testnet.pharosnetwork.xyz/",
		LoginAttempts:      10,
		LoginDelay:         20 * time.Millisecond,
		RateLimitMarkers:   []string{"too many requests", "rate limit"},
		AlreadyDoneMarkers: []string{"already"},
	}
}

func countingSigner(counter *int32) SignFunc {
	return func(message string) (string, error) {
		n := atomic.AddInt32(counter, 1)
		return fmt.Sprintf("sig-%s-%d", message, n), nil
	}
}

func TestLoginRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int32
	var signatures []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/user/login", r.URL.Path)
		assert.Equal(t, testAddress, r.URL.Query().Get("address"))
		assert.Equal(t, "INVITE", r.URL.Query().Get("invite_code"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		signatures = append(signatures, r.URL.Query().Get("signature"))

		if atomic.AddInt32(&calls, 1) <= 3 {
			fmt.Fprint(w, `{"code":1,"msg":"Too Many Requests, slow down"}`)
			return
		}
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"jwt":"token-4"}}`)
	}))
	defer srv.Close()

	var signed int32
	client := NewClient(srv.Client(), testConfig(srv.URL), zaptest.NewLogger(t))

	start := time.Now()
	token, err := client.Login(context.Background(), testAddress, countingSigner(&signed))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "token-4", token)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(4), atomic.LoadInt32(&signed))
	assert.Equal(t, []string{"sig-pharos-1", "sig-pharos-2", "sig-pharos-3", "sig-pharos-4"}, signatures)
	assert.GreaterOrEqual(t, elapsed, 3*20*time.Millisecond)
}

func TestLoginTerminalRejectionStops(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"code":400,"msg":"invalid signature"}`)
	}))
	defer srv.Close()

	var signed int32
	client := NewClient(srv.Client(), testConfig(srv.URL), zaptest.NewLogger(t))
	_, err := client.Login(context.Background(), testAddress, countingSigner(&signed))

	assert.ErrorIs(t, err, ErrLoginRejected)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoginRetriesMalformedAndServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			fmt.Fprint(w, `<html>gateway</html>`)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		case 3:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			fmt.Fprint(w, `{"code":0,"data":{"jwt":"abc"}}`)
		}
	}))
	defer srv.Close()

	var signed int32
	client := NewClient(srv.Client(), testConfig(srv.URL), zaptest.NewLogger(t))
	token, err := client.Login(context.Background(), testAddress, countingSigner(&signed))

	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestLoginGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"code":1,"msg":"rate limit exceeded"}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.LoginAttempts = 3
	cfg.LoginDelay = time.Millisecond

	var signed int32
	_, err := NewClient(srv.Client(), cfg, zaptest.NewLogger(t)).Login(context.Background(), testAddress, countingSigner(&signed))

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDailyCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/sign/in":
			fmt.Fprint(w, `{"code":0,"msg":"ok"}`)
		case "/faucet/daily":
			fmt.Fprint(w, `{"code":1,"msg":"You have already claimed today"}`)
		default:
			fmt.Fprint(w, `{"code":5,"msg":"unknown"}`)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), testConfig(srv.URL), zaptest.NewLogger(t))

	res, err := client.SignIn(context.Background(), testAddress, "jwt")
	require.NoError(t, err)
	assert.False(t, res.AlreadyDone)

	res, err = client.ClaimFaucet(context.Background(), testAddress, "jwt")
	require.NoError(t, err)
	assert.True(t, res.AlreadyDone)
}

func TestFaucetFailureIsSingleAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.Client(), testConfig(srv.URL), zaptest.NewLogger(t)).
		ClaimFaucet(context.Background(), testAddress, "jwt")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
