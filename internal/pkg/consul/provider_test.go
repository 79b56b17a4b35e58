package consul

import (
	"fmt"
	"testing"

	"github.com/airenas/memoir/internal/pkg/test"
	"github.com/airenas/memoir/internal/pkg/test/mocks"
	tapi "github.com/airenas/memoir/internal/pkg/transcriber/api"
	"github.com/airenas/memoir/internal/pkg/utils"
	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newEntry(port int, meta map[string]string) *api.ServiceEntry {
	return &api.ServiceEntry{Service: &api.AgentService{Service: "stt", Port: port, Address: "srv", Meta: meta}}
}

func newTestProvider(t *testing.T) (*Provider, map[string]*mocks.Transcriber) {
	t.Helper()
	p := newProvider(nil)
	trs := map[string]*mocks.Transcriber{}
	p.newClient = func(urlStr, language string) (tapi.Transcriber, error) {
		res := &mocks.Transcriber{}
		trs[urlStr] = res
		return res, nil
	}
	return p, trs
}

func add(p *Provider, addr string, pr float64) *mocks.Transcriber {
	tr := &mocks.Transcriber{}
	p.instances = append(p.instances, &instance{tr: tr, addr: addr, priority: pr})
	return tr
}

func Test_pick_Empty(t *testing.T) {
	p := newProvider(nil)
	in, err := p.pick("")
	assert.Nil(t, in)
	assert.NotNil(t, err)
}

func Test_pick_Weighted(t *testing.T) {
	p := newProvider(nil)
	add(p, "a", 1)
	add(p, "b", 3)
	tests := []struct {
		rnd  float64
		want string
	}{
		{rnd: 0, want: "a"},
		{rnd: 0.2, want: "a"},
		{rnd: 0.25, want: "b"},
		{rnd: 0.99, want: "b"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.rnd), func(t *testing.T) {
			p.rnd = func() float64 { return tt.rnd }
			in, err := p.pick("")
			require.Nil(t, err)
			assert.Equal(t, tt.want, in.addr)
		})
	}
}

func Test_pick_Skip(t *testing.T) {
	p := newProvider(nil)
	add(p, "a", 1)
	add(p, "b", 1)
	p.rnd = func() float64 { return 0 }
	in, err := p.pick("a")
	require.Nil(t, err)
	assert.Equal(t, "b", in.addr)
	p.instances = p.instances[:1]
	_, err = p.pick("a")
	assert.NotNil(t, err)
}

func Test_Transcribe(t *testing.T) {
	p := newProvider(nil)
	tr := add(p, "a", 1)
	tr.On("Transcribe", mock.Anything, mock.Anything).Return(&tapi.Result{Text: "olia"}, nil)
	res, err := p.Transcribe(test.Ctx(t), &tapi.AudioData{Name: "1.wav"})
	require.Nil(t, err)
	assert.Equal(t, "olia", res.Text)
}

func Test_Transcribe_None(t *testing.T) {
	p := newProvider(nil)
	_, err := p.Transcribe(test.Ctx(t), &tapi.AudioData{Name: "1.wav"})
	assert.NotNil(t, err)
}

func Test_Transcribe_Failover(t *testing.T) {
	p := newProvider(nil)
	p.rnd = func() float64 { return 0 }
	a, b := add(p, "a", 1), add(p, "b", 1)
	a.On("Transcribe", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("conn refused"))
	b.On("Transcribe", mock.Anything, mock.Anything).Return(&tapi.Result{Text: "olia"}, nil)
	res, err := p.Transcribe(test.Ctx(t), &tapi.AudioData{Name: "1.wav"})
	require.Nil(t, err)
	assert.Equal(t, "olia", res.Text)
}

func Test_Transcribe_NoFailoverOnNonRetryable(t *testing.T) {
	p := newProvider(nil)
	p.rnd = func() float64 { return 0 }
	a, b := add(p, "a", 1), add(p, "b", 1)
	a.On("Transcribe", mock.Anything, mock.Anything).Return(nil, utils.NewErrNonRetryable(fmt.Errorf("bad audio")))
	_, err := p.Transcribe(test.Ctx(t), &tapi.AudioData{Name: "1.wav"})
	assert.True(t, utils.IsNonRetryable(err))
	b.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func Test_apply_NoMeta(t *testing.T) {
	p, _ := newTestProvider(t)
	err := p.apply([]*api.ServiceEntry{newEntry(80, map[string]string{})})
	assert.NotNil(t, err)
	assert.Equal(t, 0, p.Len())
}

func Test_apply_KeepsSame(t *testing.T) {
	p, trs := newTestProvider(t)
	m := map[string]string{metaURL: "transcribe"}
	require.Nil(t, p.apply([]*api.ServiceEntry{newEntry(80, m)}))
	require.Equal(t, 1, p.Len())
	was := p.instances[0]
	require.Nil(t, p.apply([]*api.ServiceEntry{newEntry(80, m)}))
	require.Equal(t, 1, p.Len())
	assert.Same(t, was, p.instances[0])
	assert.Len(t, trs, 1)
	assert.Contains(t, trs, "http://srv:80/transcribe")
}

func Test_apply_Updates(t *testing.T) {
	p, _ := newTestProvider(t)
	require.Nil(t, p.apply([]*api.ServiceEntry{newEntry(80, map[string]string{metaURL: "transcribe"})}))
	was := p.instances[0]
	require.Nil(t, p.apply([]*api.ServiceEntry{newEntry(80, map[string]string{metaURL: "v2/transcribe"})}))
	require.Equal(t, 1, p.Len())
	assert.NotSame(t, was, p.instances[0])
}

func Test_apply_Drops(t *testing.T) {
	p, _ := newTestProvider(t)
	m := map[string]string{metaURL: "transcribe"}
	require.Nil(t, p.apply([]*api.ServiceEntry{newEntry(80, m), newEntry(81, m), newEntry(82, m)}))
	require.Equal(t, 3, p.Len())
	require.Nil(t, p.apply([]*api.ServiceEntry{newEntry(82, m), newEntry(80, m)}))
	assert.Equal(t, 2, p.Len())
}

func Test_apply_WrongPriority(t *testing.T) {
	p, _ := newTestProvider(t)
	m := map[string]string{metaURL: "t", metaPriority: "100"}
	err := p.apply([]*api.ServiceEntry{newEntry(80, m), newEntry(81, map[string]string{metaURL: "t"})})
	assert.NotNil(t, err)
	assert.Equal(t, 1, p.Len())
}

func Test_priority(t *testing.T) {
	tests := []struct {
		v       string
		want    float64
		wantErr bool
	}{
		{v: "", want: 1},
		{v: "2.5", want: 2.5},
		{v: "0.1", wantErr: true},
		{v: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.v, func(t *testing.T) {
			m := map[string]string{}
			if tt.v != "" {
				m[metaPriority] = tt.v
			}
			got, err := priority(newEntry(80, m))
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_instanceURL(t *testing.T) {
	got, err := instanceURL(newEntry(80, map[string]string{metaURL: "/transcribe"}))
	require.Nil(t, err)
	assert.Equal(t, "http://srv:80/transcribe", got)
	got, err = instanceURL(newEntry(80, map[string]string{metaURL: "t", metaSSL: "true"}))
	require.Nil(t, err)
	assert.Equal(t, "https://srv:80/t", got)
	_, err = instanceURL(newEntry(80, map[string]string{}))
	assert.NotNil(t, err)
}
