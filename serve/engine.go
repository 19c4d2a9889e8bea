// Package serve hosts the prediction engine behind a Unix domain socket.
package serve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	figd "github.com/Paranoid-AF/figd"
	"github.com/Paranoid-AF/figd/generate"
	"github.com/Paranoid-AF/figd/history"
	"github.com/Paranoid-AF/figd/rank"
	"github.com/Paranoid-AF/figd/session"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// Engine wires the session store, learning index, generators and ranker
// into the request operations the server dispatches to.
type Engine struct {
	store  *session.Store
	log    *history.Log
	index  *history.Index
	sim    *history.Similar
	dirs   *generate.DirCache
	cache  *ttlcache.Cache[string, []figd.Candidate]
	logger *zap.Logger

	// mu guards the reloadable pieces: cfg, runner and ranker are swapped
	// together on a config reload.
	mu     sync.RWMutex
	cfg    *figd.Config
	runner *generate.Runner
	ranker *rank.Ranker
}

// NewEngine builds an engine from config, replaying the durable command
// log into the in-memory index.
func NewEngine(cfg *figd.Config, logPath string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	hlog, err := history.OpenLog(logPath, logger)
	if err != nil {
		return nil, err
	}

	index := history.NewIndex(cfg.HalfLife(), cfg.History.MaxHistoryItems, logger)
	sim := history.NewSimilar()
	start := time.Now()
	if err := index.Rebuild(hlog); err != nil {
		logger.Warn("history replay failed", zap.Error(err))
	}
	if err := hlog.Replay(func(rec history.Record) {
		sim.Add(history.Normalize(rec.Command))
	}); err != nil {
		logger.Warn("similarity replay failed", zap.Error(err))
	}
	logger.Info("history loaded",
		zap.Int("commands", index.Len()),
		zap.Duration("elapsed", time.Since(start)))

	e := &Engine{
		cfg:    cfg,
		store:  session.NewStore(logger, figd.KnownShell),
		log:    hlog,
		index:  index,
		sim:    sim,
		dirs:   generate.NewDirCache(logger),
		ranker: rank.New(cfg.Ranking.CategoryWeights, cfg.Prediction.MinGhostConfidence),
		logger: logger,
	}
	e.runner = generate.NewRunner(e.buildGenerators(cfg), cfg.Deadline(), logger)

	cacheSize := cfg.Prediction.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	cacheTTL := time.Duration(cfg.Prediction.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	e.cache = ttlcache.New[string, []figd.Candidate](
		ttlcache.WithTTL[string, []figd.Candidate](cacheTTL),
		ttlcache.WithCapacity[string, []figd.Candidate](uint64(cacheSize)),
	)
	go e.cache.Start()

	return e, nil
}

func (e *Engine) buildGenerators(cfg *figd.Config) []generate.Generator {
	src := cfg.Prediction.Sources
	var gens []generate.Generator
	if src.History {
		gens = append(gens, &generate.HistoryGenerator{
			Index:   e.index,
			Similar: e.sim,
			Limit:   cfg.Suggestions.MaxSuggestions,
		})
	}
	if src.Paths {
		gens = append(gens, &generate.PathGenerator{
			MaxEntries:  cfg.Suggestions.MaxPathEntries,
			IgnoredDirs: cfg.Suggestions.IgnoredDirs,
		})
	}
	if src.Flags {
		gens = append(gens, &generate.FlagGenerator{})
	}
	if src.Project {
		gens = append(gens, &generate.ProjectGenerator{Cache: e.dirs})
	}
	return gens
}

// Sessions exposes the session store for the server's sweeper.
func (e *Engine) Sessions() *session.Store { return e.store }

// Reload swaps in a new configuration. The generator registry and ranker
// are rebuilt; the learning index, session store and caches are kept (the
// response cache is dropped so new settings take effect immediately).
func (e *Engine) Reload(cfg *figd.Config) {
	runner := generate.NewRunner(e.buildGenerators(cfg), cfg.Deadline(), e.logger)
	ranker := rank.New(cfg.Ranking.CategoryWeights, cfg.Prediction.MinGhostConfidence)

	e.mu.Lock()
	e.cfg = cfg
	e.runner = runner
	e.ranker = ranker
	e.mu.Unlock()

	e.cache.DeleteAll()
	e.logger.Info("config reloaded")
}

// Predict produces ranked candidates for the current line buffer.
func (e *Engine) Predict(ctx context.Context, req *figd.Request) *figd.PredictResponse {
	resp := &figd.PredictResponse{Candidates: []figd.Candidate{}}

	format := req.Format
	if format == "" {
		format = figd.FormatDropdown
	}
	line := req.Input
	cursor := req.CursorPos
	if cursor < 0 || cursor > len(line) {
		cursor = len(line)
	}

	e.mu.RLock()
	cfg, runner, ranker := e.cfg, e.runner, e.ranker
	e.mu.RUnlock()

	if len(strings.TrimSpace(line[:cursor])) < cfg.Suggestions.MinPrefixLength {
		return resp
	}
	if format == figd.FormatGhost && !e.store.GhostEnabled(req.SessionID) {
		return resp
	}

	snap := e.store.Get(req.SessionID)
	if req.Cwd != "" {
		snap.Cwd = req.Cwd
	}

	key := snap.Cwd + "\x00" + line[:cursor] + "\x00" + format
	if item := e.cache.Get(key); item != nil {
		resp.Candidates = e.truncate(item.Value(), req.MaxCandidates)
		return resp
	}

	in := generate.ParseInput(line, cursor, snap)
	raw := runner.Run(ctx, in)
	if ctx.Err() != nil {
		return resp
	}

	var ranked []figd.Candidate
	if format == figd.FormatGhost {
		ranked = ranker.Ghost(raw, line[:cursor])
	} else {
		limit := cfg.Dropdown.MaxItems
		if limit <= 0 {
			limit = cfg.Suggestions.MaxSuggestions
		}
		ranked = ranker.Rank(raw, line[:cursor], limit)
	}
	if len(ranked) > 0 {
		e.cache.Set(key, ranked, ttlcache.DefaultTTL)
	}

	resp.Candidates = e.truncate(ranked, req.MaxCandidates)
	return resp
}

func (e *Engine) truncate(cands []figd.Candidate, max int) []figd.Candidate {
	if cands == nil {
		return []figd.Candidate{}
	}
	if max > 0 && len(cands) > max {
		return cands[:max]
	}
	return cands
}

// Record learns from an executed command. The in-memory index is updated
// first; a log write failure is reported but never loses the in-memory
// learning.
func (e *Engine) Record(req *figd.Request) *figd.AckResponse {
	cmd := history.Normalize(req.Command)
	if cmd == "" {
		return &figd.AckResponse{OK: false, Error: &figd.Error{
			Code:    figd.CodeInvalidRequest,
			Message: "command is required",
		}}
	}
	cmd = history.RedactCommand(cmd)

	rec := history.Record{
		Command:   cmd,
		Cwd:       req.Cwd,
		Shell:     req.Shell,
		ExitCode:  req.ExitCode,
		Timestamp: time.Now(),
	}
	e.index.Add(rec)
	e.sim.Add(cmd)
	e.cache.DeleteAll()

	if err := e.log.Append(rec); err != nil {
		e.logger.Warn("history append failed", zap.Error(err))
		return &figd.AckResponse{OK: false, Error: &figd.Error{
			Code:    figd.CodePersistenceError,
			Message: err.Error(),
		}}
	}
	return &figd.AckResponse{OK: true}
}

// UpdateContext replaces a session's context snapshot.
func (e *Engine) UpdateContext(req *figd.Request) *figd.AckResponse {
	snap := session.Snapshot{
		Shell:     req.Shell,
		Cwd:       req.Cwd,
		Term:      req.Term,
		GitBranch: req.GitBranch,
	}
	if err := e.store.Update(req.SessionID, snap); err != nil {
		code := figd.CodeInvalidContext
		if errors.Is(err, session.ErrInvalidContext) && req.SessionID == "" {
			code = figd.CodeInvalidRequest
		}
		return &figd.AckResponse{OK: false, Error: &figd.Error{
			Code:    code,
			Message: err.Error(),
		}}
	}
	if req.ClientPID > 0 {
		e.store.Touch(req.SessionID, req.ClientPID)
	}
	if req.Cwd != "" {
		go e.dirs.Gather(context.Background(), req.Cwd)
	}
	return &figd.AckResponse{OK: true}
}

// ToggleGhost flips the per-session ghost-text switch.
func (e *Engine) ToggleGhost(req *figd.Request) *figd.ToggleResponse {
	if req.SessionID == "" {
		return &figd.ToggleResponse{Error: &figd.Error{
			Code:    figd.CodeInvalidRequest,
			Message: "session_id is required",
		}}
	}
	return &figd.ToggleResponse{Ghost: e.store.ToggleGhost(req.SessionID)}
}

// ResetLearning wipes the durable log and all derived in-memory state.
func (e *Engine) ResetLearning() *figd.AckResponse {
	e.index.Clear()
	e.sim.Clear()
	e.cache.DeleteAll()
	if err := e.log.Reset(); err != nil {
		return &figd.AckResponse{OK: false, Error: &figd.Error{
			Code:    figd.CodePersistenceError,
			Message: err.Error(),
		}}
	}
	return &figd.AckResponse{OK: true}
}

// Close flushes the command log and stops background loops.
func (e *Engine) Close() {
	if err := e.log.Close(); err != nil {
		e.logger.Warn("history log close failed", zap.Error(err))
	}
	e.cache.Stop()
	e.dirs.Close()
}
