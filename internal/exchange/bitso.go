package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/makerbot/bitsobot/internal/domain"
	"github.com/makerbot/bitsobot/pkg/ratelimit"
)

var log = logrus.WithField("component", "exchange")

const codeOrderAlreadyClosed = "0312"

// Bitso is the REST client for api.bitso.com.
type Bitso struct {
	client  *resty.Client
	key     string
	secret  string
	limiter *ratelimit.TokenBucket

	nonceMu   sync.Mutex
	lastNonce int64
}

func NewBitso(host, key, secret string) *Bitso {
	if host == "" {
		host = "https://api.bitso.com"
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(host, "/")).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &Bitso{
		client: client,
		key:    key,
		secret: secret,
		// Bitso allows 300 private requests per minute
		limiter: ratelimit.NewTokenBucket(60, 5),
	}
}

// nonce returns a strictly increasing millisecond timestamp.
func (b *Bitso) nonce() int64 {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()
	n := time.Now().UnixMilli()
	if n <= b.lastNonce {
		n = b.lastNonce + 1
	}
	b.lastNonce = n
	return n
}

// sign implements Bitso's HMAC auth: hex(HMAC-SHA256(secret,
// nonce+method+requestPath+body)), sent as "Bitso key:nonce:signature".
func (b *Bitso) sign(nonce int64, method, requestPath, body string) string {
	message := fmt.Sprintf("%d%s%s%s", nonce, method, requestPath, body)
	mac := hmac.New(sha256.New, []byte(b.secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

type envelope struct {
	Success bool            `json:"success"`
	Error   *apiError       `json:"error"`
	Payload json.RawMessage `json:"payload"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do signs and executes one request, unwraps the Bitso envelope into out and
// classifies API errors.
func (b *Bitso) do(ctx context.Context, method, requestPath string, body any, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := ""
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		payload = string(raw)
	}

	nonce := b.nonce()
	req := b.client.R().
		SetContext(ctx).
		SetHeader("Authorization", fmt.Sprintf("Bitso %s:%d:%s", b.key, nonce, b.sign(nonce, method, requestPath, payload)))
	if payload != "" {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}

	var resp *resty.Response
	var err error
	switch method {
	case http.MethodGet:
		resp, err = req.Get(requestPath)
	case http.MethodPost:
		resp, err = req.Post(requestPath)
	case http.MethodDelete:
		resp, err = req.Delete(requestPath)
	default:
		return errors.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, requestPath)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return errors.Wrapf(err, "%s %s: decode response (http %d)", method, requestPath, resp.StatusCode())
	}
	if !env.Success {
		if env.Error != nil && env.Error.Code == codeOrderAlreadyClosed {
			return errors.Wrapf(ErrAlreadyClosed, "code %s: %s", env.Error.Code, env.Error.Message)
		}
		if env.Error != nil {
			return errors.Errorf("%s %s: api error %s: %s", method, requestPath, env.Error.Code, env.Error.Message)
		}
		return errors.Errorf("%s %s: api error (http %d)", method, requestPath, resp.StatusCode())
	}
	if out != nil {
		if err := json.Unmarshal(env.Payload, out); err != nil {
			return errors.Wrapf(err, "%s %s: decode payload", method, requestPath)
		}
	}
	return nil
}

func (b *Bitso) Balances(ctx context.Context) (domain.Balances, error) {
	var payload struct {
		Balances []struct {
			Currency  string          `json:"currency"`
			Available decimal.Decimal `json:"available"`
		} `json:"balances"`
	}
	if err := b.do(ctx, http.MethodGet, "/v3/balance/", nil, &payload); err != nil {
		return nil, err
	}
	out := make(domain.Balances, len(payload.Balances))
	for _, bal := range payload.Balances {
		out[strings.ToLower(bal.Currency)] = bal.Available
	}
	return out, nil
}

func (b *Bitso) Fee(ctx context.Context, book string) (decimal.Decimal, error) {
	var payload struct {
		Fees []struct {
			Book       string          `json:"book"`
			FeeDecimal decimal.Decimal `json:"fee_decimal"`
		} `json:"fees"`
	}
	if err := b.do(ctx, http.MethodGet, "/v3/fees/", nil, &payload); err != nil {
		return decimal.Zero, err
	}
	for _, f := range payload.Fees {
		if f.Book == book {
			return f.FeeDecimal, nil
		}
	}
	return decimal.Zero, errors.Errorf("no fee entry for book %s", book)
}

func (b *Bitso) Ticker(ctx context.Context, book string) (*domain.Ticker, error) {
	var payload struct {
		Bid decimal.Decimal `json:"bid"`
		Ask decimal.Decimal `json:"ask"`
	}
	if err := b.do(ctx, http.MethodGet, "/v3/ticker/?book="+book, nil, &payload); err != nil {
		return nil, err
	}
	return &domain.Ticker{Bid: payload.Bid, Ask: payload.Ask}, nil
}

func (b *Bitso) PlaceOrder(ctx context.Context, book string, side domain.Side, amount, price decimal.Decimal) (string, error) {
	body := map[string]string{
		"book":  book,
		"side":  string(side),
		"type":  "limit",
		"major": amount.String(),
		"price": price.String(),
	}
	var payload struct {
		OID string `json:"oid"`
	}
	if err := b.do(ctx, http.MethodPost, "/v3/orders/", body, &payload); err != nil {
		return "", err
	}
	if payload.OID == "" {
		return "", errors.New("place order: empty oid in response")
	}
	return payload.OID, nil
}

func (b *Bitso) LookupOrder(ctx context.Context, oid string) (RemoteStatus, error) {
	var payload []struct {
		OID    string `json:"oid"`
		Status string `json:"status"`
	}
	if err := b.do(ctx, http.MethodGet, "/v3/orders/"+oid+"/", nil, &payload); err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return "", errors.Wrap(ErrAlreadyClosed, "lookup returned no orders")
	}
	return normalizeStatus(payload[0].Status), nil
}

// normalizeStatus folds Bitso's order states into the three the lifecycle
// cares about. Queued and partially filled orders are still open.
func normalizeStatus(s string) RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "complete":
		return RemoteComplete
	case "cancelled", "canceled":
		return RemoteCancelled
	default:
		return RemoteOpen
	}
}

func (b *Bitso) CancelOrder(ctx context.Context, oid string) (bool, error) {
	var payload []string
	if err := b.do(ctx, http.MethodDelete, "/v3/orders/"+oid+"/", nil, &payload); err != nil {
		return false, err
	}
	for _, cancelled := range payload {
		if cancelled == oid {
			return true, nil
		}
	}
	log.Warnf("cancel response did not list order %s: %v", oid, payload)
	return false, nil
}
