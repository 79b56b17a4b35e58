package filer

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "not found", err: minio.ErrorResponse{StatusCode: http.StatusNotFound}, want: true},
		{name: "wrapped", err: fmt.Errorf("can't: %w", minio.ErrorResponse{StatusCode: http.StatusNotFound}), want: true},
		{name: "other code", err: minio.ErrorResponse{StatusCode: http.StatusForbidden}, want: false},
		{name: "other", err: fmt.Errorf("olia"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFound(tt.err))
		})
	}
}

func TestOptions_validate(t *testing.T) {
	tests := []struct {
		name    string
		o       Options
		wantErr bool
	}{
		{name: "ok", o: Options{URL: "minio:9000", Bucket: "memoir", User: "u"}, wantErr: false},
		{name: "url", o: Options{Bucket: "memoir", User: "u"}, wantErr: true},
		{name: "bucket", o: Options{URL: "minio:9000", User: "u"}, wantErr: true},
		{name: "user", o: Options{URL: "minio:9000", Bucket: "memoir"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.o.validate() != nil)
		})
	}
}

func TestOptionsFrom(t *testing.T) {
	cfg := viper.New()
	cfg.Set("filer.url", "minio:9000")
	cfg.Set("filer.user", "u")
	cfg.Set("filer.key", "k")
	cfg.Set("filer.bucket", "memoir")
	cfg.Set("filer.https", true)
	assert.Equal(t, Options{URL: "minio:9000", User: "u", Key: "k", Bucket: "memoir", Secure: true}, OptionsFrom(cfg))
}
