package power

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/metrics/v1/power_usage" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBothDevices(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"cpu":{"usage":50,"limit":100},"gpu":{"usage":120,"limit":300}}`)
	c := NewClient(srv.URL+"/api/metrics/v1/", srv.Client())

	s, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s.CPU)
	require.NotNil(t, s.GPU)
	assert.Equal(t, 50.0, s.CPU.Usage)
	assert.Equal(t, 100.0, s.CPU.Limit)
	assert.Equal(t, 120.0, s.GPU.Usage)
	assert.Equal(t, 300.0, s.GPU.Limit)
}

func TestFetchCPUOnly(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"cpu":{"usage":50,"limit":100}}`)
	c := NewClient(srv.URL+"/api/metrics/v1", srv.Client())

	s, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s.CPU)
	assert.Nil(t, s.GPU)
}

func TestFetchMissingUsageIsUnavailable(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"cpu":{"limit":100},"gpu":{"usage":null,"limit":300}}`)
	c := NewClient(srv.URL+"/api/metrics/v1", srv.Client())

	s, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.CPU)
	assert.Nil(t, s.GPU)
}

func TestFetchMissingLimitIsZero(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"gpu":{"usage":80}}`)
	c := NewClient(srv.URL+"/api/metrics/v1", srv.Client())

	s, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s.GPU)
	assert.Equal(t, 0.0, s.GPU.Limit)
}

func TestFetchNon2xx(t *testing.T) {
	srv := serve(t, http.StatusServiceUnavailable, `{}`)
	c := NewClient(srv.URL+"/api/metrics/v1", srv.Client())

	_, err := c.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrStatus)
}

func TestFetchBadJSON(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"cpu":`)
	c := NewClient(srv.URL+"/api/metrics/v1", srv.Client())

	_, err := c.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFetchTransportFailure(t *testing.T) {
	srv := serve(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	c := NewClient(url+"/api/metrics/v1", &http.Client{Timeout: time.Second})
	_, err := c.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFetchHonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx)
	assert.Error(t, err)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestPayloadSample(t *testing.T) {
	p := Payload{CPU: &Device{Usage: 10, Limit: 40}}
	s := p.Sample()
	require.NotNil(t, s.CPU)
	assert.Nil(t, s.GPU)
	assert.Equal(t, 10.0, s.CPU.Usage)
}

func TestURL(t *testing.T) {
	c := NewClient("http://127.0.0.1:8080/api/metrics/v1/", nil)
	assert.Equal(t, "http://127.0.0.1:8080/api/metrics/v1/power_usage", c.URL())
}
