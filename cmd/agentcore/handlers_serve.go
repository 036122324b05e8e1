// handlers_serve.go implements the "serve" command: the duplex session
// server. Each WebSocket connection is one session's duplex channel,
// exchanging the client->core / core->client message envelopes from
// spec.md §6. Grounded on the teacher's internal/gateway/ws_control_plane.go
// (one upgraded connection per caller, a JSON frame envelope, a
// writer-serializing goroutine) but simplified to this spec's three
// client message kinds and fixed event-type set rather than the
// teacher's generic RPC/event multiplexing protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nexuscore/agentcore/internal/config"
	"github.com/nexuscore/agentcore/internal/events"
	"github.com/nexuscore/agentcore/internal/observability"
	"github.com/nexuscore/agentcore/internal/scheduler"
	"github.com/nexuscore/agentcore/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 45 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

func runServe(cmd *cobra.Command, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newSlogLogger(cfg, debug)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("serve: build generator: %w", err)
	}

	reg, mgr, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("serve: build registry: %w", err)
	}
	if mgr != nil {
		defer mgr.Stop()
	}

	st, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("serve: build store: %w", err)
	}
	defer st.Close()

	tmpl := sessionTemplate(cfg, gen, reg, "", "")
	sessMgr, err := newSessionManager(tmpl, st, logger)
	if err != nil {
		return fmt.Errorf("serve: build session manager: %w", err)
	}

	metrics := observability.NewMetrics()
	_, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "agentcore",
		Endpoint:    os.Getenv("AGENTCORE_OTEL_ENDPOINT"),
	})
	defer shutdownTracer(context.Background())
	_ = metrics

	watcher, err := config.NewWatcher(configPath, cfg, logger, func(next *config.Config) {
		logger.Info("serve: config hot-reload applied", "approval_mode", next.Approval.Mode)
	})
	if err != nil {
		logger.Warn("serve: config hot-reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", newWSHandler(sessMgr, logger))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serve: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("serve: shutting down")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// clientMessage is the {type, value, ...} envelope from spec.md §6,
// widened with a resumeToken field for the tool_confirmation_response
// kind per SPEC_FULL.md's resume-token addition.
type clientMessage struct {
	Type                string         `json:"type"`
	Value               string         `json:"value,omitempty"`
	CallID              string         `json:"callId,omitempty"`
	Outcome             string         `json:"outcome,omitempty"`
	ModifiedArgs        map[string]any `json:"modifiedArgs,omitempty"`
	ResumeToken         string         `json:"resumeToken,omitempty"`
	AlwaysApproveServer string         `json:"alwaysApproveServer,omitempty"`
	AlwaysApproveTool   string         `json:"alwaysApproveTool,omitempty"`
}

// serverFrame is the core->client {type, value} envelope from spec.md §6.
type serverFrame struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// newWSHandler returns an http.HandlerFunc that upgrades to a
// WebSocket and wires it to one session.Manager session. The session
// id is taken from the "session_id" query parameter, or generated.
func newWSHandler(sessMgr *session.Manager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("serve: websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		logger.Info("serve: session connected", "session_id", sessionID)

		var writeMu sync.Mutex
		writeFrame := func(frame serverFrame) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			return conn.WriteJSON(frame)
		}

		ctx, cancelPump := context.WithCancel(r.Context())
		defer cancelPump()

		evCh := sessMgr.Subscribe(sessionID)
		go pumpEvents(ctx, evCh, writeFrame)
		go pingLoop(ctx, conn, &writeMu)

		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})

		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				logger.Info("serve: session disconnected", "session_id", sessionID, "error", err)
				return
			}
			if err := dispatchClientMessage(r.Context(), sessMgr, sessionID, msg, writeFrame); err != nil {
				writeFrame(serverFrame{Type: string(events.TypeError), Value: map[string]any{
					"error": map[string]string{"message": err.Error()},
				}})
			}
		}
	}
}

func dispatchClientMessage(ctx context.Context, sessMgr *session.Manager, sessionID string, msg clientMessage, writeFrame func(serverFrame) error) error {
	switch msg.Type {
	case "user_input":
		token, err := sessMgr.HandleUserInputToken(ctx, sessionID, msg.Value)
		if err != nil {
			return err
		}
		return maybeSendResumeToken(token, writeFrame)
	case "tool_confirmation_response":
		token, err := sessMgr.HandleToolConfirmationToken(ctx, sessionID, session.ConfirmationInput{
			ResumeToken:         msg.ResumeToken,
			CallID:              msg.CallID,
			Outcome:             scheduler.Outcome(msg.Outcome),
			ModifiedArgs:        msg.ModifiedArgs,
			AlwaysApproveServer: msg.AlwaysApproveServer,
			AlwaysApproveTool:   msg.AlwaysApproveTool,
		})
		if err != nil {
			return err
		}
		return maybeSendResumeToken(token, writeFrame)
	case "cancel":
		sessMgr.HandleCancel(sessionID)
		return nil
	default:
		return fmt.Errorf("serve: unknown message type %q", msg.Type)
	}
}

func maybeSendResumeToken(token string, writeFrame func(serverFrame) error) error {
	if token == "" {
		return nil
	}
	return writeFrame(serverFrame{Type: "resume_token", Value: map[string]string{"token": token}})
}

func pumpEvents(ctx context.Context, ch <-chan events.Event, writeFrame func(serverFrame) error) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeFrame(serverFrame{Type: string(ev.Type), Value: ev.Value}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
