package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	tapi "github.com/airenas/memoir/internal/pkg/transcriber/api"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/cenkalti/backoff/v4"
)

// Client comunicates with transcriber service
type Client struct {
	httpclient *http.Client
	url        string
	language   string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a transcriber client
func NewClient(urlStr, language string) (*Client, error) {
	if urlStr == "" {
		return nil, fmt.Errorf("no transcriber URL")
	}
	res := Client{url: urlStr, language: language}
	if res.language == "" {
		res.language = "ko"
	}
	res.timeout = time.Minute * 10
	res.httpclient = asrHTTPClient()
	res.backoff = newSimpleBackoff
	goapp.Log.Info().Str("url", urlStr).Str("language", res.language).Msg("transcriber")
	return &res, nil
}

// Transcribe sends audio to the service and waits for text
func (sp *Client) Transcribe(ctx context.Context, audio *tapi.AudioData) (*tapi.Result, error) {
	body, contentType, err := prepareBody(audio, sp.language)
	if err != nil {
		return nil, fmt.Errorf("can't prepare request: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (*tapi.Result, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sp.url, bytes.NewReader(body))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", contentType)
		goapp.Log.Info().Str("url", req.URL.String()).Str("file", audio.Name).Int("bytes", len(body)).Msg("call")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && !goapp.IsRetryableCode(resp.StatusCode) {
				return nil, false, utils.NewErrNonRetryable(err)
			}
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		var res tapi.Result
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, false, utils.NewErrNonRetryable(fmt.Errorf("can't decode response: %w", err))
		}
		if err := tapi.Validate(&res); err != nil {
			return nil, false, utils.NewErrNonRetryable(err)
		}
		return &res, false, nil
	}, sp.backoff())
}

func prepareBody(audio *tapi.AudioData, language string) ([]byte, string, error) {
	if audio == nil || len(audio.Content) == 0 {
		return nil, "", utils.NewErrNonRetryable(fmt.Errorf("no audio"))
	}
	if audio.Language != "" {
		language = audio.Language
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, utils.CleanFileName(audio.Name)))
	ct := audio.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("can't add file to request: %w", err)
	}
	if _, err = part.Write(audio.Content); err != nil {
		return nil, "", fmt.Errorf("can't add file content to request: %w", err)
	}
	if err := writer.WriteField("language", language); err != nil {
		return nil, "", fmt.Errorf("can't add param: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", fmt.Errorf("can't add param: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("can't close writer: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

func asrHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
