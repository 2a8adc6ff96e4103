package main

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rl1809/shop/internal/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()
	return addr
}

func TestListen_BothAddresses(t *testing.T) {
	httpLis, grpcLis, err := listen(config.ServerConfig{HTTPAddr: "127.0.0.1:0", GRPCAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer httpLis.Close()
	defer grpcLis.Close()

	if httpLis.Addr().String() == grpcLis.Addr().String() {
		t.Errorf("expected distinct listeners, both on %s", httpLis.Addr())
	}
}

func TestListen_SkipsEmptyAddress(t *testing.T) {
	httpLis, grpcLis, err := listen(config.ServerConfig{GRPCAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer grpcLis.Close()

	if httpLis != nil {
		t.Errorf("expected no HTTP listener, got %s", httpLis.Addr())
	}
}

func TestListen_GRPCFailureClosesHTTP(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	httpAddr := freeAddr(t)
	httpLis, grpcLis, err := listen(config.ServerConfig{HTTPAddr: httpAddr, GRPCAddr: busy.Addr().String()})
	if err == nil {
		t.Fatal("expected error when the gRPC address is taken")
	}
	if httpLis != nil || grpcLis != nil {
		t.Error("expected nil listeners on error")
	}

	// The HTTP port must have been released.
	again, err := net.Listen("tcp", httpAddr)
	if err != nil {
		t.Fatalf("HTTP listener left open: %v", err)
	}
	again.Close()
}

func TestNewHTTPServer_ReadHeaderTimeout(t *testing.T) {
	cfg := config.Default().Server
	cfg.ReadHeaderTimeout = 3 * time.Second

	srv := newHTTPServer(cfg, http.NotFoundHandler())
	if srv.ReadHeaderTimeout != 3*time.Second {
		t.Errorf("expected 3s read header timeout, got %s", srv.ReadHeaderTimeout)
	}
	if srv.Addr != cfg.HTTPAddr {
		t.Errorf("expected addr %q, got %q", cfg.HTTPAddr, srv.Addr)
	}
}
