package otp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"payment_broker/internal/domain"
)

const phone = "+21612345678"

type captureSender struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (c *captureSender) Send(ctx context.Context, phone, code string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
	return "sms", nil
}

func (c *captureSender) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[len(c.codes)-1]
}

func newService(t *testing.T) (*Service, *captureSender, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	sender := &captureSender{}
	return NewService(rdb, sender, 300*time.Second, WithBcryptCost(bcrypt.MinCost)), sender, mr
}

func wrongCode(code string) string {
	if code == "0000" {
		return "1111"
	}
	return "0000"
}

func TestRequestStoresHashedFourDigitCode(t *testing.T) {
	svc, sender, mr := newService(t)

	channel, err := svc.Request(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, "sms", channel)

	code := sender.last()
	assert.Regexp(t, `^[0-9]{4}$`, code)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "otp:"+phone+":"))
	stored, err := mr.Get(keys[0])
	require.NoError(t, err)
	assert.NotEqual(t, code, stored)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte(code)))
	assert.Equal(t, 300*time.Second, mr.TTL(keys[0]))
}

func TestWrongCodeRetainsRecord(t *testing.T) {
	svc, sender, mr := newService(t)
	ctx := context.Background()
	_, err := svc.Request(ctx, phone)
	require.NoError(t, err)

	ok, err := svc.Verify(ctx, phone, wrongCode(sender.last()))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, mr.Keys(), 1)

	ok, err = svc.Verify(ctx, phone, sender.last())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCorrectCodeDeletesAllRecordsForPhone(t *testing.T) {
	svc, sender, mr := newService(t)
	ctx := context.Background()
	_, err := svc.Request(ctx, phone)
	require.NoError(t, err)
	_, err = svc.Request(ctx, phone)
	require.NoError(t, err)
	_, err = svc.Request(ctx, "+21699999999")
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 3)

	ok, err := svc.Verify(ctx, phone, sender.codes[0])
	require.NoError(t, err)
	assert.True(t, ok)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "+21699999999")

	// consumed codes cannot be replayed
	ok, err = svc.Verify(ctx, phone, sender.codes[1])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCodeExpires(t *testing.T) {
	svc, sender, mr := newService(t)
	ctx := context.Background()
	_, err := svc.Request(ctx, phone)
	require.NoError(t, err)

	mr.FastForward(301 * time.Second)

	ok, err := svc.Verify(ctx, phone, sender.last())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidPhone(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Request(context.Background(), "abc*")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Verify(context.Background(), "", "1234")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUndeliveredCodeIsDiscarded(t *testing.T) {
	svc, sender, mr := newService(t)
	sender.err = errors.New("gateway down")

	_, err := svc.Request(context.Background(), phone)
	assert.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestFallbackSenderUsesNextChannel(t *testing.T) {
	var got map[string]string
	sms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer sms.Close()
	whatsapp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer whatsapp.Close()

	f := FallbackSender{Senders: []Sender{
		NewHTTPSender("sms", sms.URL, "key", time.Second),
		NewHTTPSender("whatsapp", whatsapp.URL, "key", time.Second),
	}}
	channel, err := f.Send(context.Background(), phone, "4321")
	require.NoError(t, err)
	assert.Equal(t, "whatsapp", channel)
	assert.Equal(t, phone, got["to"])
	assert.Contains(t, got["message"], "4321")
}

func TestFallbackSenderAllFail(t *testing.T) {
	f := FallbackSender{Senders: []Sender{
		NewHTTPSender("sms", "", "", time.Second),
		NewHTTPSender("whatsapp", "", "", time.Second),
	}}
	_, err := f.Send(context.Background(), phone, "1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whatsapp")

	_, err = FallbackSender{}.Send(context.Background(), phone, "1234")
	assert.Error(t, err)
}

func TestServiceWithoutRedis(t *testing.T) {
	svc := NewService(nil, LogSender{}, 0)
	_, err := svc.Request(context.Background(), phone)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = svc.Verify(context.Background(), phone, "1234")
	assert.ErrorIs(t, err, ErrUnavailable)
}
