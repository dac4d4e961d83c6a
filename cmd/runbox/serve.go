package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/runboxd/runbox/internal/logger"
	"github.com/runboxd/runbox/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for code execution",
	Long: `Start an HTTP server exposing the runtime registry.

Endpoints:
  POST /execute     Execute code: {"language":"python","code":"..."}
  GET  /languages   List registered languages
  GET  /health      Health check`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "Per-request execution timeout")
	rootCmd.AddCommand(serveCmd)
}

type executeRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type executeResponse struct {
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) {
	setupLogging(cmd)

	port, _ := cmd.Flags().GetInt("port")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	router := newRouter(reg, timeout)

	addr := fmt.Sprintf(":%d", port)
	logrus.WithField("addr", addr).Info("serving")
	if err := http.ListenAndServe(addr, router); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRouter(reg *runtime.Registry, timeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/execute", handleExecute(reg, timeout)).Methods(http.MethodPost)
	router.HandleFunc("/languages", handleLanguages(reg)).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)
	return router
}

func handleExecute(reg *runtime.Registry, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		log := logrus.WithField("request_id", requestID)
		ctx := logger.WithLogger(r.Context(), log)

		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Language == "" || req.Code == "" {
			http.Error(w, "language and code required", http.StatusBadRequest)
			return
		}

		eng, err := reg.Acquire(ctx, req.Language)
		if err != nil {
			log.WithError(err).Warn("acquisition failed")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		execCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result := eng.Execute(execCtx, req.Code)
		resp := executeResponse{
			Output:     result.Output,
			DurationMs: result.Duration.Milliseconds(),
		}
		if result.Err != nil {
			resp.Error = result.Err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleLanguages(reg *runtime.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]string{"languages": reg.Languages()})
	}
}
