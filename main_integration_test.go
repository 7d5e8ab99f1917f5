package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/fer-service/internal/emotion"
	"github.com/example/fer-service/internal/handlers"
	"github.com/example/fer-service/internal/inference"
	"github.com/example/fer-service/internal/usecase"
)

type blockingPredictor struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPredictor) Predict(ctx context.Context, requestID string, imageBytes []byte) (emotion.Scores, error) {
	select {
	case <-p.started:
	default:
		close(p.started)
	}
	<-p.release
	return emotion.Map([]float32{0, 0, 0, 1, 0, 0, 0})
}

type readyState struct{}

func (readyState) State() inference.State { return inference.StateReady }

type discardFeedback struct{}

func (discardFeedback) Submit(ctx context.Context, fb usecase.Feedback) {}

func TestServerGracefulShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	predictor := &blockingPredictor{started: make(chan struct{}), release: make(chan struct{})}
	defer func() {
		select {
		case <-predictor.release:
		default:
			close(predictor.release)
		}
	}()

	router := handlers.NewRouter(handlers.Dependencies{
		Predictor: predictor,
		Feedback:  discardFeedback{},
		Readiness: readyState{},
		Logger:    logger,
	})

	t.Log("creating listener")
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	announced := make(chan struct{})
	plan := shutdownPlan{
		Timeout:  2 * time.Second,
		Listener: listener,
		Signals:  signalCh,
		Announce: func() { close(announced) },
	}
	done := make(chan error, 1)
	go func() {
		done <- runHTTP(server, plan, logger)
	}()

	addr := listener.Addr().String()
	t.Logf("listening on %s", addr)
	waitForServer(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		t.Log("sending request")
		body := "--b\r\nContent-Disposition: form-data; name=\"image\"; filename=\"face.png\"\r\nContent-Type: image/png\r\n\r\npixels\r\n--b--\r\n"
		resp, err := client.Post("http://"+addr+"/predict", "multipart/form-data; boundary=b", strings.NewReader(body))
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-predictor.started:
		t.Log("request started")
	case <-time.After(2 * time.Second):
		t.Fatal("request did not start in time")
	}

	t.Log("sending signal")
	signalCh <- syscall.SIGTERM

	select {
	case <-announced:
		t.Log("shutdown announced")
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown was not announced before draining")
	}
	time.Sleep(50 * time.Millisecond)
	close(predictor.release)
	t.Log("released request")

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
		if !strings.Contains(string(body), `"Happy":1`) {
			t.Fatalf("unexpected body: %s", string(body))
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
		t.Log("server shutdown complete")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func TestServerClosesConnectionsAfterDrainTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	predictor := &blockingPredictor{started: make(chan struct{}), release: make(chan struct{})}
	defer close(predictor.release)

	router := handlers.NewRouter(handlers.Dependencies{
		Predictor: predictor,
		Feedback:  discardFeedback{},
		Readiness: readyState{},
		Logger:    logger,
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- runHTTP(&http.Server{Handler: router}, shutdownPlan{
			Timeout:  100 * time.Millisecond,
			Listener: listener,
			Signals:  signalCh,
		}, logger)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	errCh := make(chan error, 1)
	go func() {
		body := "--b\r\nContent-Disposition: form-data; name=\"image\"; filename=\"face.png\"\r\nContent-Type: image/png\r\n\r\npixels\r\n--b--\r\n"
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Post("http://"+addr+"/predict", "multipart/form-data; boundary=b", strings.NewReader(body))
		if err == nil {
			resp.Body.Close()
		}
		errCh <- err
	}()

	select {
	case <-predictor.started:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not start in time")
	}

	signalCh <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit after forced close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after drain timeout")
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected stuck request to be cut off")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stuck request was not cut off")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
