package connectivity

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDialProbeReachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("start listener: %v", err)
	}
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	probe := NewDialProbe(listener.Addr().String(), time.Second)
	if !probe.IsReachable(context.Background()) {
		t.Fatalf("expected local listener to be reachable")
	}
}

func TestDialProbeUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("start listener: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	probe := NewDialProbe(addr, 200*time.Millisecond)
	if probe.IsReachable(context.Background()) {
		t.Fatalf("expected closed port to be unreachable")
	}
}

func TestStaticProbeToggle(t *testing.T) {
	probe := NewStaticProbe(false)
	if probe.IsReachable(context.Background()) {
		t.Fatalf("expected initial state to be offline")
	}
	probe.Set(true)
	if !probe.IsReachable(context.Background()) {
		t.Fatalf("expected probe to report online after Set(true)")
	}
}
