package inform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
)

// HTTPSender posts mails as json to smtp.fakeUrl instead of sending them
// Used by test environments
type HTTPSender struct {
	url        string
	httpclient *http.Client
	timeout    time.Duration
}

type mailBody struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"`
}

// NewHTTPSender creates sender from smtp.fakeUrl
func NewHTTPSender(c *viper.Viper) (*HTTPSender, error) {
	res := HTTPSender{url: c.GetString("smtp.fakeUrl"), httpclient: &http.Client{}, timeout: 5 * time.Second}
	if res.url == "" {
		return nil, fmt.Errorf("no smtp.fakeUrl")
	}
	goapp.Log.Info().Str("url", res.url).Msg("http mail sender")
	return &res, nil
}

// Send posts the mail
func (s *HTTPSender) Send(m *email.Email) error {
	body, err := json.Marshal(&mailBody{From: m.From, To: m.To, Subject: m.Subject, Text: string(m.Text),
		HTML: string(m.HTML)})
	if err != nil {
		return fmt.Errorf("can't marshal mail: %w", err)
	}
	ctx, cancelF := context.WithTimeout(context.Background(), s.timeout)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	goapp.Log.Info().Str("url", req.URL.String()).Strs("to", m.To).Msg("post mail")
	resp, err := s.httpclient.Do(req)
	if err != nil {
		return fmt.Errorf("can't post mail: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
	}
	return nil
}
