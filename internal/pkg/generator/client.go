package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/narrative"
	"github.com/airenas/memoir/internal/pkg/persistence"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxTranscript bounds the transcript context for draft writing
	DefaultMaxTranscript = 12000
	// RegenerateContext bounds the draft context for chapter regeneration
	RegenerateContext = 3000
)

// Client invokes the text generation service
type Client struct {
	httpclient    *http.Client
	url           string
	timeout       time.Duration
	maxTranscript int
	backoff       func() backoff.BackOff
}

// RegenerateInput is regeneration request data
type RegenerateInput struct {
	Chapter  persistence.Chapter `json:"chapter"`
	Feedback string              `json:"feedback"`
	Context  string              `json:"context"`
}

type extractRequest struct {
	Transcript string `json:"transcript"`
}

type writeRequest struct {
	Story      *persistence.StoryData `json:"story"`
	Transcript string                 `json:"transcript"`
}

// NewClient creates a generator client
func NewClient(urlStr string, maxTranscript int) (*Client, error) {
	if urlStr == "" {
		return nil, fmt.Errorf("no generator URL")
	}
	res := Client{url: strings.TrimSuffix(urlStr, "/"), maxTranscript: maxTranscript}
	if res.maxTranscript <= 0 {
		res.maxTranscript = DefaultMaxTranscript
	}
	res.timeout = time.Minute * 5
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	}
	goapp.Log.Info().Str("url", res.url).Int("maxTranscript", res.maxTranscript).Msg("generator")
	return &res, nil
}

// Extract returns structured story data of the transcript
func (c *Client) Extract(ctx context.Context, transcript string) (*persistence.StoryData, error) {
	defer goapp.Estimate("generator.Extract")()
	if strings.TrimSpace(transcript) == "" {
		return nil, utils.NewErrNonRetryable(fmt.Errorf("no transcript"))
	}
	var res persistence.StoryData
	if err := c.invoke(ctx, "/extract", &extractRequest{Transcript: transcript}, &res); err != nil {
		return nil, err
	}
	if err := ValidateStory(&res); err != nil {
		return nil, utils.NewErrNonRetryable(err)
	}
	return &res, nil
}

// Write generates draft chapters from the story
func (c *Client) Write(ctx context.Context, story *persistence.StoryData, transcript string) (*narrative.DraftData, error) {
	defer goapp.Estimate("generator.Write")()
	if story == nil {
		return nil, utils.NewErrNonRetryable(fmt.Errorf("no story"))
	}
	var res narrative.DraftData
	if err := c.invoke(ctx, "/write", &writeRequest{Story: story,
		Transcript: narrative.Bound(transcript, c.maxTranscript)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Regenerate rewrites one chapter by user feedback
func (c *Client) Regenerate(ctx context.Context, in *RegenerateInput) (*persistence.Chapter, error) {
	defer goapp.Estimate("generator.Regenerate")()
	req := *in
	req.Context = narrative.Bound(in.Context, RegenerateContext)
	var res persistence.Chapter
	if err := c.invoke(ctx, "/regenerate", &req, &res); err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Content) == "" {
		return nil, utils.NewErrNonRetryable(fmt.Errorf("empty chapter content"))
	}
	if strings.TrimSpace(res.Title) == "" {
		res.Title = in.Chapter.Title
	}
	return &res, nil
}

func (c *Client) invoke(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("can't marshal request: %w", err)
	}
	_, err = goapp.InvokeWithBackoff(ctx, func() (bool, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
		if err != nil {
			return false, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		goapp.Log.Info().Str("url", req.URL.String()).Int("bytes", len(body)).Msg("call")
		resp, err := c.httpclient.Do(req)
		if err != nil {
			return false, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			if goapp.IsRetryableCode(resp.StatusCode) {
				return false, true, err
			}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return false, false, utils.NewErrNonRetryable(err)
			}
			return false, false, err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, false, utils.NewErrNonRetryable(fmt.Errorf("can't decode response: %w", err))
		}
		return true, false, nil
	}, c.backoff())
	return err
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxIdleConns = 10
	res.MaxConnsPerHost = 10
	res.MaxIdleConnsPerHost = 5
	res.IdleConnTimeout = time.Minute * 5
	return res
}
