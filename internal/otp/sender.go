package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Sender delivers a verification code and reports the channel used.
type Sender interface {
	Send(ctx context.Context, phone, code string) (string, error)
}

// HTTPSender posts {to, message} to a messaging provider.
type HTTPSender struct {
	Channel string
	URL     string
	APIKey  string
	Client  *http.Client
}

// NewHTTPSender builds a sender for one channel ("sms", "whatsapp").
func NewHTTPSender(channel, url, apiKey string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{Channel: channel, URL: url, APIKey: apiKey, Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, phone, code string) (string, error) {
	if s.URL == "" {
		return "", fmt.Errorf("%s sender is not configured", s.Channel)
	}
	body, err := json.Marshal(map[string]string{
		"to":      phone,
		"message": "Your verification code is " + code,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s sender: build request failed", s.Channel)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		// the URL may embed credentials, keep it out of the message
		return "", fmt.Errorf("%s sender: request failed", s.Channel)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s sender: provider answered %d", s.Channel, resp.StatusCode)
	}
	return s.Channel, nil
}

// FallbackSender tries each sender in order until one succeeds.
type FallbackSender struct {
	Senders []Sender
}

func (f FallbackSender) Send(ctx context.Context, phone, code string) (string, error) {
	var errs []error
	for _, s := range f.Senders {
		channel, err := s.Send(ctx, phone, code)
		if err == nil {
			return channel, nil
		}
		logrus.WithFields(logrus.Fields{"phone": phone, "error": err.Error()}).Warn("OTP channel failed, trying next")
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", errors.New("no OTP sender configured")
	}
	return "", errors.Join(errs...)
}

// LogSender writes the code to the log. Development only.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, phone, code string) (string, error) {
	logrus.WithFields(logrus.Fields{"phone": phone, "code": code}).Info("OTP code (log sender)")
	return "log", nil
}
