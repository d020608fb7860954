package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatternScope/pkg/config"
	xhttp "PatternScope/pkg/http"
	applogger "PatternScope/pkg/logger"
)

func TestRunContextStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ShutdownTimeout = time.Second

	l := applogger.Nop()
	srv := xhttp.NewServer(l, nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetricsPath(""))
	app := New(cfg, l, srv, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestNewDefaultsLogger(t *testing.T) {
	app := New(config.Default(), nil, nil, nil, nil)
	assert.NotNil(t, app.log)
}
