package inform

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPSender(t *testing.T) {
	_, err := NewHTTPSender(viper.New())
	assert.NotNil(t, err)

	cfg := viper.New()
	cfg.Set("smtp.fakeUrl", "http://mail:8000")
	s, err := NewHTTPSender(cfg)
	require.Nil(t, err)
	assert.Equal(t, "http://mail:8000", s.url)
}

func TestHTTPSender_Send(t *testing.T) {
	var got mailBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Nil(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()
	cfg := viper.New()
	cfg.Set("smtp.fakeUrl", srv.URL)
	s, err := NewHTTPSender(cfg)
	require.Nil(t, err)

	m := email.NewEmail()
	m.From = "memoir@o.o"
	m.To = []string{"olia@o.o"}
	m.Subject = "Done"
	m.Text = []byte("Your draft is ready")
	require.Nil(t, s.Send(m))
	assert.Equal(t, mailBody{From: "memoir@o.o", To: []string{"olia@o.o"}, Subject: "Done",
		Text: "Your draft is ready"}, got)
}

func TestHTTPSender_Send_Fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	cfg := viper.New()
	cfg.Set("smtp.fakeUrl", srv.URL)
	s, err := NewHTTPSender(cfg)
	require.Nil(t, err)
	assert.NotNil(t, s.Send(email.NewEmail()))
}
