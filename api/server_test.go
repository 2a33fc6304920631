package api

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/glowbook/glowbook-backend/pkg/logger"
)

func TestNewServerTimeouts(t *testing.T) {
	server := NewServer(":0", http.NotFoundHandler())
	if server.ReadHeaderTimeout != readHeaderTimeout || server.WriteTimeout != writeTimeout {
		t.Fatalf("unexpected timeouts %+v", server)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	server := NewServer("127.0.0.1:0", http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, server, logger.New(logger.Options{ServiceName: "api-test", Output: io.Discard}))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
