package consul

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/memoir/internal/pkg/transcriber"
	tapi "github.com/airenas/memoir/internal/pkg/transcriber/api"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/hashicorp/consul/api"
	"go.uber.org/multierr"
)

const (
	metaURL      = "transcribeURL"
	metaSSL      = "HTTPSSL"
	metaPriority = "priority"

	minPriority = 0.5
	maxPriority = 50.0
)

// Provider balances transcription between the healthy instances registered in consul
type Provider struct {
	consul   *api.Client
	srvName  string
	language string

	newClient func(urlStr, language string) (tapi.Transcriber, error)
	rnd       func() float64

	lock      sync.RWMutex
	instances []*instance
}

type instance struct {
	tr       tapi.Transcriber
	addr     string
	meta     string
	priority float64
}

// NewProvider creates consul based transcriber provider
func NewProvider(cfg *api.Config, srvName, language string) (*Provider, error) {
	if srvName == "" {
		return nil, fmt.Errorf("no srv name")
	}
	c, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("can't init consul client: %w", err)
	}
	res := newProvider(c)
	res.srvName, res.language = srvName, language
	goapp.Log.Info().Str("service", srvName).Str("language", language).Msg("cfg: transcriber from consul")
	return res, nil
}

func newProvider(c *api.Client) *Provider {
	return &Provider{consul: c, rnd: rand.Float64,
		newClient: func(urlStr, language string) (tapi.Transcriber, error) {
			return transcriber.NewClient(urlStr, language)
		}}
}

// Transcribe invokes a weighted random instance, on a transient failure one more instance is tried
func (c *Provider) Transcribe(ctx context.Context, audio *tapi.AudioData) (*tapi.Result, error) {
	in, err := c.pick("")
	if err != nil {
		return nil, err
	}
	res, err := in.tr.Transcribe(ctx, audio)
	if err == nil || utils.IsNonRetryable(err) || ctx.Err() != nil {
		return res, err
	}
	next, errPick := c.pick(in.addr)
	if errPick != nil {
		return nil, err
	}
	goapp.Log.Warn().Err(err).Str("failed", in.addr).Str("next", next.addr).Msg("switch transcriber")
	return next.tr.Transcribe(ctx, audio)
}

func (c *Provider) pick(skip string) (*instance, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var cands []*instance
	sum := 0.0
	for _, in := range c.instances {
		if in.addr != skip {
			cands = append(cands, in)
			sum += in.priority
		}
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("no transcriber available")
	}
	at := c.rnd() * sum
	for _, in := range cands {
		if at < in.priority {
			return in, nil
		}
		at -= in.priority
	}
	return cands[len(cands)-1], nil
}

// Len returns the number of active instances
func (c *Provider) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.instances)
}

// StartRegistryLoop refreshes the instances until ctx is done
func (c *Provider) StartRegistryLoop(ctx context.Context, every time.Duration) (<-chan struct{}, error) {
	if every <= 0 {
		return nil, fmt.Errorf("wrong check interval %v", every)
	}
	goapp.Log.Info().Msgf("Starting consul service check every %v", every)
	res := make(chan struct{})
	go func() {
		defer close(res)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			if err := c.refresh(ctx); err != nil {
				goapp.Log.Error().Err(err).Msg("consul refresh")
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				goapp.Log.Info().Msg("Stopped consul check")
				return
			}
		}
	}()
	return res, nil
}

func (c *Provider) refresh(ctx context.Context) error {
	ctxInt, cf := context.WithTimeout(ctx, 5*time.Second)
	defer cf()
	entries, _, err := c.consul.Health().Service(c.srvName, "", true, (&api.QueryOptions{}).WithContext(ctxInt))
	if err != nil {
		return fmt.Errorf("can't invoke consul: %w", err)
	}
	return c.apply(entries)
}

// apply keeps unchanged instances, drops the missing and creates the new ones
func (c *Provider) apply(entries []*api.ServiceEntry) error {
	fresh := make(map[string]*api.ServiceEntry, len(entries))
	for _, e := range entries {
		fresh[address(e)] = e
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	var kept []*instance
	for _, in := range c.instances {
		if e, ok := fresh[in.addr]; ok && in.meta == signature(e) {
			kept = append(kept, in)
			delete(fresh, in.addr)
		} else {
			goapp.Log.Warn().Str("service", in.addr).Msg("dropped transcriber")
		}
	}
	var err error
	for addr, e := range fresh {
		in, errInt := c.newInstance(addr, e)
		if errInt != nil {
			err = multierr.Append(err, errInt)
			continue
		}
		kept = append(kept, in)
		goapp.Log.Info().Str("service", addr).Float64("priority", in.priority).Msg("added transcriber")
	}
	c.instances = kept
	return err
}

func (c *Provider) newInstance(addr string, e *api.ServiceEntry) (*instance, error) {
	u, err := instanceURL(e)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	pr, err := priority(e)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	tr, err := c.newClient(u, c.language)
	if err != nil {
		return nil, fmt.Errorf("%s: can't init transcriber: %w", addr, err)
	}
	return &instance{tr: tr, addr: addr, meta: signature(e), priority: pr}, nil
}

func priority(e *api.ServiceEntry) (float64, error) {
	v, ok := e.Service.Meta[metaPriority]
	if !ok {
		return 1, nil
	}
	res, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse priority '%s': %w", v, err)
	}
	if res < minPriority || res > maxPriority {
		return 0, fmt.Errorf("priority %v not in [%v, %v]", res, minPriority, maxPriority)
	}
	return res, nil
}

func instanceURL(e *api.ServiceEntry) (string, error) {
	path := strings.TrimSpace(e.Service.Meta[metaURL])
	if path == "" {
		return "", fmt.Errorf("no %s in service meta", metaURL)
	}
	scheme := "http"
	if ssl, err := strconv.ParseBool(e.Service.Meta[metaSSL]); err == nil && ssl {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: address(e), Path: "/" + strings.TrimPrefix(path, "/")}
	return u.String(), nil
}

func address(e *api.ServiceEntry) string {
	return net.JoinHostPort(e.Service.Address, strconv.Itoa(e.Service.Port))
}

func signature(e *api.ServiceEntry) string {
	return strings.Join([]string{e.Service.Meta[metaURL], e.Service.Meta[metaSSL], e.Service.Meta[metaPriority]}, "|")
}
