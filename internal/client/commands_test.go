package client

import (
	"bufio"
	"net"
	"testing"

	"qstore/internal/intern"
	"qstore/internal/notify"
	"qstore/internal/resp"
)

func TestClient_Handshake(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		cmd, err := resp.ReadValue(r)
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if string(cmd.Array[0].Bulk) != resp.OpPeerHandshake {
			t.Errorf("expected handshake opcode, got %q", cmd.Array[0].Bulk)
		}
		if err := resp.WriteValue(conn, resp.NewInteger(resp.ProtocolVersion)); err != nil {
			t.Errorf("server write: %v", err)
		}
	})

	c, err := Dial(addr, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	v, err := c.Handshake()
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if v != resp.ProtocolVersion {
		t.Fatalf("expected protocol version %d, got %d", resp.ProtocolVersion, v)
	}
}

func TestClient_TakeSnapshot(t *testing.T) {
	blob := []byte("QSNPfake-compressed-bytes")
	addr := fakeServer(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		if _, err := resp.ReadValue(r); err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if err := resp.WriteValue(conn, resp.NewBulk(blob)); err != nil {
			t.Errorf("server write: %v", err)
		}
	})

	c, err := Dial(addr, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	got, err := c.TakeSnapshot()
	if err != nil {
		t.Fatalf("take snapshot: %v", err)
	}
	if string(got) != string(blob) {
		t.Fatalf("expected blob to round trip, got %q", got)
	}
}

func TestClient_RegisterByIDAndUnregister(t *testing.T) {
	token := notify.Token{0xaa, 0xbb}
	addr := fakeServer(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)

		cmd, err := resp.ReadValue(r)
		if err != nil {
			t.Errorf("server read register: %v", err)
			return
		}
		if string(cmd.Array[0].Bulk) != resp.OpRegisterNotification {
			t.Errorf("expected register opcode, got %q", cmd.Array[0].Bulk)
		}
		if cmd.Array[1].Int != 1 {
			t.Errorf("expected ByID marker 1, got %d", cmd.Array[1].Int)
		}
		if err := resp.WriteValue(conn, resp.NewBulkString(token.String())); err != nil {
			t.Errorf("server write register response: %v", err)
			return
		}

		cmd2, err := resp.ReadValue(r)
		if err != nil {
			t.Errorf("server read unregister: %v", err)
			return
		}
		if string(cmd2.Array[0].Bulk) != resp.OpUnregisterNotify {
			t.Errorf("expected unregister opcode, got %q", cmd2.Array[0].Bulk)
		}
		if string(cmd2.Array[1].Bulk) != token.String() {
			t.Errorf("expected unregister to carry the registered token, got %q", cmd2.Array[1].Bulk)
		}
		if err := resp.WriteValue(conn, resp.NewSimpleString("OK")); err != nil {
			t.Errorf("server write unregister response: %v", err)
		}
	})

	c, err := Dial(addr, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	got, err := c.RegisterByID(intern.NewEntityId(1, 1), 2, notify.Config{Trigger: notify.Always})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got != token {
		t.Fatalf("expected token %v, got %v", token, got)
	}
	if err := c.Unregister(got); err != nil {
		t.Fatalf("unregister: %v", err)
	}
}

func TestClient_RegisterByType(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		cmd, err := resp.ReadValue(r)
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if cmd.Array[1].Int != 0 {
			t.Errorf("expected ByType marker 0, got %d", cmd.Array[1].Int)
		}
		if err := resp.WriteValue(conn, resp.NewBulkString(notify.Token{}.String())); err != nil {
			t.Errorf("server write: %v", err)
		}
	})

	c, err := Dial(addr, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if _, err := c.RegisterByType(3, 2, notify.Config{Trigger: notify.OnChange}); err != nil {
		t.Fatalf("register by type: %v", err)
	}
}
