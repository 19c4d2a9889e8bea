package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	figd "github.com/Paranoid-AF/figd"
)

// stubHandler returns fixed responses for testing.
type stubHandler struct {
	predict *figd.PredictResponse
}

func (s *stubHandler) Predict(_ context.Context, _ *figd.Request) *figd.PredictResponse {
	// Return a copy to avoid race conditions when the server sets RequestID.
	return &figd.PredictResponse{
		Candidates: s.predict.Candidates,
		Error:      s.predict.Error,
	}
}

func (s *stubHandler) Record(_ *figd.Request) *figd.AckResponse { return &figd.AckResponse{OK: true} }

func (s *stubHandler) UpdateContext(_ *figd.Request) *figd.AckResponse {
	return &figd.AckResponse{OK: true}
}

func (s *stubHandler) ToggleGhost(_ *figd.Request) *figd.ToggleResponse {
	return &figd.ToggleResponse{Ghost: false}
}

func (s *stubHandler) ResetLearning() *figd.AckResponse { return &figd.AckResponse{OK: true} }

func (s *stubHandler) Close() {}

var testSocketCounter atomic.Int64

func newTestServer(t *testing.T, h Handler) *Server {
	t.Helper()
	// Use /tmp directly to avoid macOS 104-char Unix socket path limit
	n := testSocketCounter.Add(1)
	sockPath := fmt.Sprintf("/tmp/figd-t%d.sock", n)
	srv, err := NewServer(sockPath, "", h, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	go srv.Serve()
	return srv
}

func sendRaw(t *testing.T, sockPath string, req *figd.Request) []byte {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	conn.Write(append(data, '\n'))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatal("no response from server")
	}
	return append([]byte(nil), scanner.Bytes()...)
}

func sendPredict(t *testing.T, sockPath string, req *figd.Request) *figd.PredictResponse {
	t.Helper()
	var resp figd.PredictResponse
	if err := json.Unmarshal(sendRaw(t, sockPath, req), &resp); err != nil {
		t.Fatal(err)
	}
	return &resp
}

func TestPredictEchoesRequestID(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	resp := sendPredict(t, srv.sockPath, &figd.Request{
		Type:      figd.TypePredict,
		RequestID: 17,
		Input:     "git st",
		CursorPos: 6,
	})

	if resp.RequestID != 17 {
		t.Errorf("expected request_id 17, got %d", resp.RequestID)
	}
}

func TestPredictCandidatesNotNull(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	raw := sendRaw(t, srv.sockPath, &figd.Request{
		Type:      figd.TypePredict,
		RequestID: 1,
		Input:     "ls",
	})
	if !strings.Contains(string(raw), `"candidates":[]`) {
		t.Errorf("expected candidates:[] in raw JSON, got %s", raw)
	}
}

func TestPredictSequentialIDs(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	for _, id := range []int{1, 2, 3} {
		resp := sendPredict(t, srv.sockPath, &figd.Request{
			Type:      figd.TypePredict,
			RequestID: id,
			Input:     "test",
		})
		if resp.RequestID != id {
			t.Errorf("expected request_id %d, got %d", id, resp.RequestID)
		}
	}
}

// slowHandler blocks in Predict until its context is cancelled.
type slowHandler struct {
	stubHandler

	mu        sync.Mutex
	cancelled []int // request IDs whose contexts were cancelled
}

func (s *slowHandler) Predict(ctx context.Context, req *figd.Request) *figd.PredictResponse {
	<-ctx.Done()
	s.mu.Lock()
	s.cancelled = append(s.cancelled, req.RequestID)
	s.mu.Unlock()
	return &figd.PredictResponse{Candidates: []figd.Candidate{}}
}

func TestPredictCancelsOldSession(t *testing.T) {
	slow := &slowHandler{}
	srv := newTestServer(t, slow)

	// Send first request (will block in Predict until cancelled).
	conn1, err := net.Dial("unix", srv.sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn1.Close()

	req1, _ := json.Marshal(&figd.Request{
		Type:      figd.TypePredict,
		RequestID: 1,
		Input:     "git st",
		SessionID: "sess1",
	})
	conn1.Write(append(req1, '\n'))

	// Give the server time to start processing req1.
	time.Sleep(50 * time.Millisecond)

	// Send second request for the same session; it must cancel req1.
	conn2, err := net.Dial("unix", srv.sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn2.Close()

	req2, _ := json.Marshal(&figd.Request{
		Type:      figd.TypePredict,
		RequestID: 2,
		Input:     "git status",
		SessionID: "sess1",
	})
	conn2.Write(append(req2, '\n'))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		slow.mu.Lock()
		found := false
		for _, id := range slow.cancelled {
			if id == 1 {
				found = true
			}
		}
		slow.mu.Unlock()
		if found {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected request 1 to be cancelled when request 2 arrived for the same session")
}

func TestUnknownTypeRejected(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	var resp figd.AckResponse
	raw := sendRaw(t, srv.sockPath, &figd.Request{Type: "frobnicate", RequestID: 9})
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.OK {
		t.Error("expected OK=false for unknown type")
	}
	if resp.Error == nil || resp.Error.Code != figd.CodeUnknownType {
		t.Errorf("expected unknown_type error, got %+v", resp.Error)
	}
	if resp.RequestID != 9 {
		t.Errorf("expected request_id 9, got %d", resp.RequestID)
	}
}

func TestLearningUnknownAction(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	var resp figd.AckResponse
	raw := sendRaw(t, srv.sockPath, &figd.Request{Type: figd.TypeLearning, Action: "explode"})
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != figd.CodeUnknownAction {
		t.Errorf("expected unknown_action error, got %+v", resp.Error)
	}
}

func TestConfigDefaultsAction(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	var resp figd.ConfigResponse
	raw := sendRaw(t, srv.sockPath, &figd.Request{Type: figd.TypeConfig, Action: "defaults"})
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %s", resp.Error.Message)
	}
	if resp.Config == nil {
		t.Fatal("expected non-nil config")
	}
	if resp.Config.Prediction.MaxLatencyMS <= 0 {
		t.Error("expected positive default latency budget")
	}
	if len(resp.Config.Ranking.CategoryWeights) == 0 {
		t.Error("expected default category weights")
	}
}

func TestConfigReloadUsesServerConfigPath(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(cfgPath, []byte("dropdown:\n  max_items: 42\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// Point the default config location somewhere empty so a reload that
	// ignores the server's path would come back with built-in defaults.
	t.Setenv("FIGD_CONFIG_DIR", filepath.Join(dir, "empty"))

	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	n := testSocketCounter.Add(1)
	sockPath := fmt.Sprintf("/tmp/figd-t%d.sock", n)
	srv, err := NewServer(sockPath, cfgPath, stub, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	go srv.Serve()

	for _, action := range []string{"get", "reload"} {
		var resp figd.ConfigResponse
		raw := sendRaw(t, srv.sockPath, &figd.Request{Type: figd.TypeConfig, Action: action})
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Error != nil {
			t.Fatalf("%s: unexpected error: %s", action, resp.Error.Message)
		}
		if resp.Config == nil || resp.Config.Dropdown.MaxItems != 42 {
			t.Errorf("%s: expected max_items 42 from the server's config path, got %+v", action, resp.Config)
		}
	}
}

func TestLargeRequestLine(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	// A request line well past 64KB must still get a response.
	resp := sendPredict(t, srv.sockPath, &figd.Request{
		Type:      figd.TypePredict,
		RequestID: 4,
		Input:     strings.Repeat("a", 100*1024),
	})
	if resp.RequestID != 4 {
		t.Errorf("expected request_id 4, got %d", resp.RequestID)
	}
}

func TestConcurrentNonPredictRequests(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	n := runtime.NumCPU()*2 + 2
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(id int) {
			conn, err := net.Dial("unix", srv.sockPath)
			if err != nil {
				results <- err
				return
			}
			defer conn.Close()

			data, err := json.Marshal(&figd.Request{Type: figd.TypeRecord, RequestID: id, Command: "ls"})
			if err != nil {
				results <- err
				return
			}
			conn.Write(append(data, '\n'))

			scanner := bufio.NewScanner(conn)
			if !scanner.Scan() {
				results <- fmt.Errorf("request %d: no response", id)
				return
			}
			var ack figd.AckResponse
			if err := json.Unmarshal(scanner.Bytes(), &ack); err != nil {
				results <- err
				return
			}
			if !ack.OK {
				results <- fmt.Errorf("request %d: expected OK ack, got %+v", id, ack.Error)
				return
			}
			results <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-results; err != nil {
			t.Error(err)
		}
	}
}

func TestMalformedRequestRejected(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	conn, err := net.Dial("unix", srv.sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.Write([]byte("this is not json\n"))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatal("no response from server")
	}
	var resp figd.AckResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != figd.CodeInvalidRequest {
		t.Errorf("expected invalid_request error, got %+v", resp.Error)
	}
}

func TestCloseRemovesSocket(t *testing.T) {
	stub := &stubHandler{predict: &figd.PredictResponse{Candidates: []figd.Candidate{}}}
	srv := newTestServer(t, stub)

	srv.Close()
	if _, err := net.Dial("unix", srv.sockPath); err == nil {
		t.Error("expected dial to fail after Close")
	}
}
