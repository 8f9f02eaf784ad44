package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/divan/gorilla-xmlrpc/xml"
	"github.com/gorilla/rpc"

	"github.com/pkeller/hostwatch/internal/wire"
)

// badPingAgent replies to pings with the wrong message.
type badPingAgent struct{}

func (badPingAgent) Ping(r *http.Request, _ *struct{}, reply *StubPingReply) error {
	reply.Message = "nope"
	return nil
}

func startBadPingAgent(t *testing.T) string {
	t.Helper()

	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(xml.NewCodec(), "text/xml")
	if err := rpcServer.RegisterService(badPingAgent{}, "Agent"); err != nil {
		t.Fatalf("RegisterService() error = %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle(wire.RPCPath, rpcServer)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return strings.TrimPrefix(ts.URL, "http://")
}

func TestClient_Ping(t *testing.T) {
	addr := startStubAgent(t, &stubAgent{})
	client := NewClient(addr, time.Second)
	defer client.Close()

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if n := client.Failures(); n != 0 {
		t.Errorf("Failures() = %d, want 0", n)
	}
}

func TestClient_Metrics(t *testing.T) {
	addr := startStubAgent(t, &stubAgent{cpu: 33.5})
	client := NewClient(addr, time.Second)
	defer client.Close()

	report, err := client.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if report.Hostname != "stub-host" {
		t.Errorf("Hostname = %q, want %q", report.Hostname, "stub-host")
	}
	if report.CPUUsage != 33.5 {
		t.Errorf("CPUUsage = %v, want 33.5", report.CPUUsage)
	}
	if report.Memory.UsedPercent != 40 {
		t.Errorf("Memory.UsedPercent = %v, want 40", report.Memory.UsedPercent)
	}
	if report.Memory.Total != 1<<30 {
		t.Errorf("Memory.Total = %d, want %d", report.Memory.Total, 1<<30)
	}
	if report.Disk.Path != "/" || report.Disk.UsedPercent != 50 {
		t.Errorf("Disk = %+v, want path / at 50%%", report.Disk)
	}
}

func TestClient_PongMismatch(t *testing.T) {
	addr := startBadPingAgent(t)
	client := NewClient(addr, time.Second)
	defer client.Close()

	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("Ping() error = nil, want mismatch error")
	}

	// a fresh client's first metrics call verifies the connection with a
	// ping and must hit the same mismatch
	fresh := NewClient(addr, time.Second)
	defer fresh.Close()
	if _, err := fresh.Metrics(context.Background()); err == nil {
		t.Fatal("Metrics() error = nil, want ping verification failure")
	}
}

func TestClient_ConsecutiveFailures(t *testing.T) {
	// nothing listens on this port
	client := NewClient("127.0.0.1:1", 500*time.Millisecond)
	defer client.Close()

	for i := 1; i <= 3; i++ {
		if _, err := client.Metrics(context.Background()); err == nil {
			t.Fatalf("Metrics() call %d: error = nil, want connection error", i)
		}
		if n := client.Failures(); n != i {
			t.Errorf("Failures() after call %d = %d, want %d", i, n, i)
		}
	}
}

func TestClient_FailureCounterResetsOnSuccess(t *testing.T) {
	addr := startStubAgent(t, &stubAgent{})

	client := NewClient("127.0.0.1:1", 500*time.Millisecond)
	if _, err := client.Metrics(context.Background()); err == nil {
		t.Fatal("Metrics() error = nil, want connection error")
	}
	client.Close()

	client = NewClient(addr, time.Second)
	defer client.Close()
	if _, err := client.Metrics(context.Background()); err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if n := client.Failures(); n != 0 {
		t.Errorf("Failures() = %d, want 0 after success", n)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	addr := startStubAgent(t, &stubAgent{})
	client := NewClient(addr, 10*time.Second)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Ping(ctx); err == nil {
		t.Fatal("Ping() error = nil, want context error")
	}
}

func TestClient_Addr(t *testing.T) {
	client := NewClient("10.0.0.1:9931", 0)
	if got := client.Addr(); got != "10.0.0.1:9931" {
		t.Errorf("Addr() = %q, want %q", got, "10.0.0.1:9931")
	}
}
