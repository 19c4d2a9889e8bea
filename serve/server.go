package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	figd "github.com/Paranoid-AF/figd"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Handler processes requests for the server. *Engine is the production
// implementation.
type Handler interface {
	Predict(ctx context.Context, req *figd.Request) *figd.PredictResponse
	Record(req *figd.Request) *figd.AckResponse
	UpdateContext(req *figd.Request) *figd.AckResponse
	ToggleGhost(req *figd.Request) *figd.ToggleResponse
	ResetLearning() *figd.AckResponse
	Close()
}

// sessionEntry tracks a cancellable in-flight predict request for a session.
type sessionEntry struct {
	requestID int
	cancel    context.CancelFunc
}

const (
	sweepInterval = time.Minute
	sessionMaxAge = 30 * time.Minute
)

// Server listens on a Unix domain socket and dispatches requests to the
// engine. One request is served per connection.
type Server struct {
	listener net.Listener
	sockPath string
	cfgPath  string
	engine   Handler
	sem      *semaphore.Weighted
	logger   *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	sessions map[string]sessionEntry
}

// NewServer creates an IPC server bound to the given socket path. The
// config IPC actions load from cfgPath; empty means the default location,
// matching the daemon's own startup load.
func NewServer(sockPath, cfgPath string, engine Handler, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Remove stale socket file if it exists.
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		sockPath: sockPath,
		cfgPath:  cfgPath,
		engine:   engine,
		sem:      semaphore.NewWeighted(int64(runtime.NumCPU())),
		logger:   logger,
		stop:     make(chan struct{}),
		sessions: make(map[string]sessionEntry),
	}

	if e, ok := engine.(*Engine); ok {
		go e.Sessions().StartSweeper(sweepInterval, sessionMaxAge, s.stop)
	}
	return s, nil
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server, the engine, and removes the socket file.
func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.listener.Close()
		s.engine.Close()
		os.Remove(s.sockPath)
	})
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			s.logger.Warn("request read failed", zap.Error(err))
			s.write(conn, &figd.AckResponse{OK: false, Error: &figd.Error{
				Code:    figd.CodeInvalidRequest,
				Message: "request read failed: " + err.Error(),
			}})
		}
		return
	}
	raw := scanner.Bytes()
	s.logger.Debug("request", zap.ByteString("data", raw))

	var req figd.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("invalid request", zap.Error(err))
		s.write(conn, &figd.AckResponse{OK: false, Error: &figd.Error{
			Code:    figd.CodeInvalidRequest,
			Message: "malformed request: " + err.Error(),
		}})
		return
	}

	// Every request flows through the bounded worker pool. Predict
	// acquires inside handlePredict so a newer request for the same
	// session can cancel the wait.
	if req.Type != figd.TypePredict {
		if err := s.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer s.sem.Release(1)
	}

	switch req.Type {
	case figd.TypePredict:
		s.handlePredict(conn, &req)
	case figd.TypeRecord:
		resp := s.engine.Record(&req)
		resp.RequestID = req.RequestID
		s.write(conn, resp)
	case figd.TypeContext:
		resp := s.engine.UpdateContext(&req)
		resp.RequestID = req.RequestID
		s.write(conn, resp)
	case figd.TypeToggleGhost:
		resp := s.engine.ToggleGhost(&req)
		resp.RequestID = req.RequestID
		s.write(conn, resp)
	case figd.TypeLearning:
		s.handleLearning(conn, &req)
	case figd.TypeConfig:
		s.handleConfig(conn, &req)
	default:
		s.write(conn, &figd.AckResponse{RequestID: req.RequestID, OK: false, Error: &figd.Error{
			Code:    figd.CodeUnknownType,
			Message: "unknown request type: " + req.Type,
		}})
	}
}

func (s *Server) handlePredict(conn net.Conn, req *figd.Request) {
	// A newer request from the same session obsoletes this one; cancel
	// whatever is still in flight and register ourselves.
	ctx, cancel := context.WithCancel(context.Background())
	sid := req.SessionID
	if sid != "" {
		s.mu.Lock()
		if prev, ok := s.sessions[sid]; ok {
			prev.cancel()
		}
		s.sessions[sid] = sessionEntry{requestID: req.RequestID, cancel: cancel}
		s.mu.Unlock()
	}
	defer func() {
		cancel()
		if sid != "" {
			s.mu.Lock()
			if cur, ok := s.sessions[sid]; ok && cur.requestID == req.RequestID {
				delete(s.sessions, sid)
			}
			s.mu.Unlock()
		}
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	resp := s.engine.Predict(ctx, req)
	s.sem.Release(1)

	// If cancelled, skip writing; the client has already moved on.
	if ctx.Err() != nil {
		return
	}

	if sid != "" && req.ClientPID > 0 {
		if e, ok := s.engine.(*Engine); ok {
			e.Sessions().Touch(sid, req.ClientPID)
		}
	}

	resp.RequestID = req.RequestID
	s.write(conn, resp)
}

func (s *Server) handleLearning(conn net.Conn, req *figd.Request) {
	var resp *figd.AckResponse
	switch req.Action {
	case "reset":
		resp = s.engine.ResetLearning()
	default:
		resp = &figd.AckResponse{OK: false, Error: &figd.Error{
			Code:    figd.CodeUnknownAction,
			Message: "unknown learning action: " + req.Action,
		}}
	}
	resp.RequestID = req.RequestID
	s.write(conn, resp)
}

func (s *Server) handleConfig(conn net.Conn, req *figd.Request) {
	var resp figd.ConfigResponse

	switch req.Action {
	case "get":
		cfg, err := figd.LoadConfig(s.cfgPath)
		if err != nil {
			resp.Error = &figd.Error{Code: figd.CodeConfigError, Message: err.Error()}
		} else {
			resp.Config = cfg
		}

	case "reload":
		cfg, err := figd.LoadConfig(s.cfgPath)
		if err != nil {
			resp.Error = &figd.Error{Code: figd.CodeConfigError, Message: err.Error()}
			break
		}
		if e, ok := s.engine.(*Engine); ok {
			e.Reload(cfg)
		}
		resp.Config = cfg
		resp.Warnings = figd.ValidateConfig(cfg)

	case "defaults":
		resp.Config = figd.DefaultConfig()

	case "validate":
		cfg, err := figd.LoadConfig(s.cfgPath)
		if err != nil {
			resp.Error = &figd.Error{Code: figd.CodeConfigError, Message: err.Error()}
		} else {
			resp.Warnings = figd.ValidateConfig(cfg)
		}

	default:
		resp.Error = &figd.Error{
			Code:    figd.CodeUnknownAction,
			Message: "unknown config action: " + req.Action,
		}
	}

	s.write(conn, &resp)
}

func (s *Server) write(conn net.Conn, resp any) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	s.logger.Debug("response", zap.ByteString("data", data))
	conn.Write(append(data, '\n'))
}
