package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"interviewroom/internal/app"
	"interviewroom/internal/config"
)

const inviteSecret = "integration-secret"

// StartTestApplication boots the full stack on a free loopback port with
// offline agents and a fresh SQLite file
func StartTestApplication(t *testing.T, adjust func(*config.Config)) (*app.Application, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "integration.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.OpenAI.APIKey = ""
	cfg.Auth.InviteSecret = inviteSecret
	cfg.Interview.PhaseThresholds = []int{1, 1, 1, 1, 1}
	cfg.Interview.ReassuranceProbability = 0
	if adjust != nil {
		adjust(cfg)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	return application, cfg
}

// StopTestApplication drains sessions so every queued write reaches the database
func StopTestApplication(t *testing.T, application *app.Application) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Failed to stop application: %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// Dial opens a websocket against the running application
func Dial(t *testing.T, application *app.Application) *gorillaws.Conn {
	t.Helper()
	conn, _, err := gorillaws.DefaultDialer.Dial("ws://"+application.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Send writes one client event
func Send(t *testing.T, conn *gorillaws.Conn, eventType string, data interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": eventType}
	if data != nil {
		msg["data"] = data
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to send %s: %v", eventType, err)
	}
}

// ReadUntil discards events until eventType arrives and returns its data
func ReadUntil(t *testing.T, conn *gorillaws.Conn, eventType string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var msg struct {
			Type string                 `json:"type"`
			Data map[string]interface{} `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed waiting for %s: %v", eventType, err)
		}
		if msg.Type == eventType {
			return msg.Data
		}
	}
}
