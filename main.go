package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/magical-paperclip/neighborhood-sub000/config"
	"github.com/magical-paperclip/neighborhood-sub000/domain"
	"github.com/magical-paperclip/neighborhood-sub000/protocol"
	"github.com/magical-paperclip/neighborhood-sub000/registry"
	"github.com/magical-paperclip/neighborhood-sub000/simonsays"
	ws "github.com/magical-paperclip/neighborhood-sub000/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	cfg := config.Load()
	log := newLogger(cfg)
	defer log.Sync()

	reg := registry.New(log, cfg.MoveBroadcastMin)
	game := simonsays.New(reg, reg, cfg.CommandDuration, log)
	handler := protocol.NewHandler(reg, game, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(reg, handler, log))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", statsHandler(reg, game))
	mux.HandleFunc("/simonsays/start", startHandler(game))
	mux.HandleFunc("/simonsays/stop", stopHandler(game))
	mux.HandleFunc("/simonsays/next", nextHandler(game))

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	go func() {
		log.Infow("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("server shutting down")
	game.Stop()
	if data, err := protocol.Encode(protocol.KindDisconnect, protocol.DisconnectPayload{Reason: "server shutting down"}); err == nil {
		reg.BroadcastAll(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorw("shutdown error", "error", err)
	}
}

func newLogger(cfg config.Config) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	sink := zapcore.AddSync(os.Stdout)
	if cfg.LogFile != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		})
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller()).Sugar()
}

func wsHandler(reg *registry.Registry, handler *protocol.Handler, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorw("upgrade error", "error", err)
			return
		}

		info := domain.JoinInfo{
			DisplayName: r.URL.Query().Get("name"),
			AvatarURL:   r.URL.Query().Get("avatar"),
		}
		conn := ws.NewConn(socket, reg, handler, log)
		conn.Start(info)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(reg *registry.Registry, game *simonsays.Game) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"participants":    reg.Count(),
			"simonSaysActive": game.Active(),
		})
	}
}

func startHandler(game *simonsays.Game) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cmd := game.Start()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cmd)
	}
}

func stopHandler(game *simonsays.Game) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		game.Stop()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"stopped": true})
	}
}

func nextHandler(game *simonsays.Game) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cmd, ok := game.IssueNewCommand()
		if !ok {
			http.Error(w, "game not active", http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cmd)
	}
}
