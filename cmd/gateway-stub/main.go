package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Local gateway simulator for exercising the dispatcher without a real
// messaging provider. All behavior is scripted off the recipient address:
//
//	suffix "00"  -> send rejected with "recipient not registered on network"
//	suffix "11"  -> send rejected with "session closed by remote host";
//	                the channel then reports disconnected until it is
//	                revived via POST /channels/{id}/revive
//	suffix "22"  -> capability probe reports unreachable
//
// Everything else is accepted. Responses match the wire format the
// dispatcher's gateway client expects.

type sendRequest struct {
	Address string          `json:"address"`
	Payload json.RawMessage `json:"payload"`
}

type sendResponse struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// channelState tracks which simulated channels have dropped their session.
type channelState struct {
	mu   sync.Mutex
	down map[string]bool
}

func (s *channelState) markDown(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down[id] = true
}

func (s *channelState) revive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.down, id)
}

func (s *channelState) isDown(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down[id]
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  WARNING: This is a STUB GATEWAY for local testing ONLY.  ║")
	log.Println("║  Send outcomes are scripted off the recipient address.    ║")
	log.Println("║  No messages leave this process.                          ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")
	log.Println("")

	addr := os.Getenv("GATEWAY_STUB_ADDR")
	if addr == "" {
		addr = ":8090"
	}

	state := &channelState{down: make(map[string]bool)}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "gateway-stub",
			"warning": "THIS IS A STUB - send outcomes are scripted",
		})
	})

	r.Post("/channels/{channelID}/messages", func(w http.ResponseWriter, r *http.Request) {
		channelID := chi.URLParam(r, "channelID")

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, sendResponse{Error: "malformed request body"})
			return
		}

		if state.isDown(channelID) {
			writeJSON(w, http.StatusOK, sendResponse{Error: "session closed by remote host"})
			return
		}

		switch {
		case strings.HasSuffix(req.Address, "00"):
			writeJSON(w, http.StatusOK, sendResponse{Error: "recipient not registered on network"})
		case strings.HasSuffix(req.Address, "11"):
			state.markDown(channelID)
			log.Printf("channel %s: simulated session drop triggered by %s", channelID, req.Address)
			writeJSON(w, http.StatusOK, sendResponse{Error: "session closed by remote host"})
		default:
			writeJSON(w, http.StatusOK, sendResponse{OK: true, MessageID: newMessageID()})
		}
	})

	r.Get("/channels/{channelID}/contacts/{address}/capability", func(w http.ResponseWriter, r *http.Request) {
		address := chi.URLParam(r, "address")
		writeJSON(w, http.StatusOK, map[string]bool{
			"reachable": !strings.HasSuffix(address, "22"),
		})
	})

	r.Get("/channels/{channelID}/status", func(w http.ResponseWriter, r *http.Request) {
		channelID := chi.URLParam(r, "channelID")
		writeJSON(w, http.StatusOK, map[string]bool{
			"connected": !state.isDown(channelID),
		})
	})

	// Not part of the real gateway surface. Lets a local session drop be
	// undone so health-monitor reactivation can be exercised end to end.
	r.Post("/channels/{channelID}/revive", func(w http.ResponseWriter, r *http.Request) {
		channelID := chi.URLParam(r, "channelID")
		state.revive(channelID)
		log.Printf("channel %s: revived", channelID)
		writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Stub gateway listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down stub gateway...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func newMessageID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "stub-msg"
	}
	return "stub-" + hex.EncodeToString(b[:])
}
