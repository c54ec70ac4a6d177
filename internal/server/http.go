package server

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/cheese-chess/internal/msgcat"
	"github.com/park285/cheese-chess/internal/service/games"
	"github.com/park285/cheese-chess/pkg/chessdto"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
	requestTimeout     = 45 * time.Second
)

// GameService is the part of games.Service the API exposes.
type GameService interface {
	Create(ctx context.Context, req chessdto.CreateGameRequest) (*chessdto.GameState, error)
	Get(ctx context.Context, id string) (*chessdto.GameState, error)
	Move(ctx context.Context, id string, req chessdto.MoveRequest) (*chessdto.GameState, error)
	RequestEngineMove(ctx context.Context, id string) (*chessdto.GameState, error)
	Undo(ctx context.Context, id string) (*chessdto.GameState, error)
	Resign(ctx context.Context, id string, req chessdto.ResignRequest) (*chessdto.GameState, error)
	PGN(ctx context.Context, id string) (string, error)
	Archived(ctx context.Context, id string) (*chessdto.ArchivedGame, error)
	Recent(ctx context.Context, limit int) ([]*chessdto.ArchivedGame, error)
}

var _ GameService = (*games.Service)(nil)

// API serves the JSON game API over fasthttp.
type API struct {
	svc  GameService
	msgs *msgcat.Catalog
	log  *zap.Logger
	srv  *fasthttp.Server
}

// NewAPI builds the API. A nil catalog falls back to the embedded messages.
func NewAPI(svc GameService, msgs *msgcat.Catalog, logger *zap.Logger) (*API, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if msgs == nil {
		var err error
		if msgs, err = msgcat.New(""); err != nil {
			return nil, err
		}
	}
	a := &API{svc: svc, msgs: msgs, log: logger}
	a.srv = &fasthttp.Server{
		Handler:            a.Handle,
		Name:               "cheese-chess",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       requestTimeout,
		MaxRequestBodySize: 64 << 10,
	}
	return a, nil
}

func (a *API) ListenAndServe(addr string) error {
	a.log.Info("http_listen", zap.String("addr", addr))
	return a.srv.ListenAndServe(addr)
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.srv.ShutdownWithContext(ctx)
}

// Handle routes one request.
func (a *API) Handle(rc *fasthttp.RequestCtx) {
	start := time.Now()
	method := string(rc.Method())
	path := strings.Trim(string(rc.Path()), "/")
	parts := strings.Split(path, "/")

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch {
	case path == "healthz":
		rc.SetStatusCode(fasthttp.StatusOK)
		rc.SetBodyString("ok")
	case parts[0] == "games":
		a.routeGames(ctx, rc, method, parts[1:])
	case parts[0] == "archive":
		a.routeArchive(ctx, rc, method, parts[1:])
	default:
		writeError(rc, fasthttp.StatusNotFound, chessdto.DomainError{Code: chessdto.CodeNotFound, Message: "no such route"})
	}

	a.log.Debug("http_request",
		zap.String("method", method),
		zap.String("path", "/"+path),
		zap.Int("status", rc.Response.StatusCode()),
		zap.Duration("elapsed", time.Since(start)))
}

func (a *API) routeGames(ctx context.Context, rc *fasthttp.RequestCtx, method string, parts []string) {
	switch {
	case len(parts) == 0 || parts[0] == "":
		if method != fasthttp.MethodPost {
			methodNotAllowed(rc)
			return
		}
		var req chessdto.CreateGameRequest
		if !decode(rc, &req) {
			return
		}
		st, err := a.svc.Create(ctx, req)
		a.respond(rc, fasthttp.StatusCreated, st, err, nil)

	case len(parts) == 1:
		if method != fasthttp.MethodGet {
			methodNotAllowed(rc)
			return
		}
		st, err := a.svc.Get(ctx, parts[0])
		a.respond(rc, fasthttp.StatusOK, st, err, map[string]string{"ID": parts[0]})

	case len(parts) == 2:
		id, action := parts[0], parts[1]
		if action == "pgn" {
			if method != fasthttp.MethodGet {
				methodNotAllowed(rc)
				return
			}
			pgn, err := a.svc.PGN(ctx, id)
			if err != nil {
				a.respond(rc, 0, nil, err, map[string]string{"ID": id})
				return
			}
			rc.SetContentType("application/x-chess-pgn")
			rc.SetBodyString(pgn)
			return
		}
		if method != fasthttp.MethodPost {
			methodNotAllowed(rc)
			return
		}
		a.gameAction(ctx, rc, id, action)

	default:
		writeError(rc, fasthttp.StatusNotFound, chessdto.DomainError{Code: chessdto.CodeNotFound, Message: "no such route"})
	}
}

func (a *API) gameAction(ctx context.Context, rc *fasthttp.RequestCtx, id, action string) {
	var (
		st   *chessdto.GameState
		err  error
		vars = map[string]string{"ID": id}
	)
	switch action {
	case "moves":
		var req chessdto.MoveRequest
		if !decode(rc, &req) {
			return
		}
		vars["Move"] = req.Move
		st, err = a.svc.Move(ctx, id, req)
	case "engine":
		st, err = a.svc.RequestEngineMove(ctx, id)
	case "undo":
		st, err = a.svc.Undo(ctx, id)
	case "resign":
		var req chessdto.ResignRequest
		if len(rc.PostBody()) > 0 && !decode(rc, &req) {
			return
		}
		st, err = a.svc.Resign(ctx, id, req)
	default:
		writeError(rc, fasthttp.StatusNotFound, chessdto.DomainError{Code: chessdto.CodeNotFound, Message: "no such route"})
		return
	}
	a.respond(rc, fasthttp.StatusOK, st, err, vars)
}

func (a *API) routeArchive(ctx context.Context, rc *fasthttp.RequestCtx, method string, parts []string) {
	if method != fasthttp.MethodGet {
		methodNotAllowed(rc)
		return
	}
	if len(parts) == 0 || parts[0] == "" {
		limit := defaultRecentLimit
		if v := rc.QueryArgs().Peek("limit"); len(v) > 0 {
			n, err := strconv.Atoi(string(v))
			if err != nil || n <= 0 {
				writeError(rc, fasthttp.StatusBadRequest, chessdto.DomainError{Code: chessdto.CodeInvalidRequest, Message: "invalid limit"})
				return
			}
			limit = min(n, maxRecentLimit)
		}
		list, err := a.svc.Recent(ctx, limit)
		a.respond(rc, fasthttp.StatusOK, list, err, nil)
		return
	}
	g, err := a.svc.Archived(ctx, parts[0])
	a.respond(rc, fasthttp.StatusOK, g, err, map[string]string{"ID": parts[0]})
}

// respond writes body, or the error rendered through the message catalog
// with vars as template data.
func (a *API) respond(rc *fasthttp.RequestCtx, status int, body any, err error, vars map[string]string) {
	if err != nil {
		code, de := domainError(err)
		if code >= fasthttp.StatusInternalServerError {
			a.log.Error("http_handler_failed", zap.String("path", string(rc.Path())), zap.Error(err))
		}
		if de.Code != chessdto.CodeInternal {
			de.Message = a.msgs.Error(de.Code, vars, de.Message)
		}
		writeError(rc, code, de)
		return
	}
	writeJSON(rc, status, body)
}

// domainError maps service errors to a status code and API error body.
func domainError(err error) (int, chessdto.DomainError) {
	msg := err.Error()
	switch {
	case errors.Is(err, games.ErrGameNotFound):
		return fasthttp.StatusNotFound, chessdto.DomainError{Code: chessdto.CodeNotFound, Message: msg}
	case errors.Is(err, games.ErrIllegalMove):
		return fasthttp.StatusUnprocessableEntity, chessdto.DomainError{Code: chessdto.CodeIllegalMove, Message: msg}
	case errors.Is(err, games.ErrNotYourTurn):
		return fasthttp.StatusConflict, chessdto.DomainError{Code: chessdto.CodeNotYourTurn, Message: msg}
	case errors.Is(err, games.ErrGameOver):
		return fasthttp.StatusConflict, chessdto.DomainError{Code: chessdto.CodeGameOver, Message: msg}
	case errors.Is(err, games.ErrUndoNotAllowed):
		return fasthttp.StatusConflict, chessdto.DomainError{Code: chessdto.CodeUndoNotAllowed, Message: msg}
	case errors.Is(err, games.ErrInvalidRequest):
		return fasthttp.StatusBadRequest, chessdto.DomainError{Code: chessdto.CodeInvalidRequest, Message: msg}
	case errors.Is(err, games.ErrEngineUnavailable), errors.Is(err, context.DeadlineExceeded):
		return fasthttp.StatusServiceUnavailable, chessdto.DomainError{Code: chessdto.CodeEngineUnavailable, Message: msg, Retryable: true}
	default:
		return fasthttp.StatusInternalServerError, chessdto.DomainError{Code: chessdto.CodeInternal, Message: "internal error"}
	}
}

func decode(rc *fasthttp.RequestCtx, v any) bool {
	body := rc.PostBody()
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(rc, fasthttp.StatusBadRequest, chessdto.DomainError{Code: chessdto.CodeInvalidRequest, Message: "malformed json body"})
		return false
	}
	return true
}

func methodNotAllowed(rc *fasthttp.RequestCtx) {
	writeError(rc, fasthttp.StatusMethodNotAllowed, chessdto.DomainError{Code: chessdto.CodeInvalidRequest, Message: "method not allowed"})
}

func writeError(rc *fasthttp.RequestCtx, status int, de chessdto.DomainError) {
	writeJSON(rc, status, map[string]chessdto.DomainError{"error": de})
}

func writeJSON(rc *fasthttp.RequestCtx, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	rc.SetStatusCode(status)
	rc.SetContentType("application/json")
	rc.SetBody(payload)
}
