package ws

import (
	"net"
	"testing"
	"time"
)

func newTestConnection(id, userID string, fd int) (*Connection, net.Conn) {
	server, client := net.Pipe()
	return &Connection{
		ID:        id,
		UserID:    userID,
		Conn:      server,
		Fd:        fd,
		CreatedAt: time.Now(),
		LastPing:  time.Now(),
	}, client
}

func TestConnectionManagerAddRemove(t *testing.T) {
	cm := NewConnectionManager()

	c1, peer1 := newTestConnection("conn-1", "user-1", 10)
	defer peer1.Close()
	c2, peer2 := newTestConnection("conn-2", "user-2", 11)
	defer peer2.Close()

	cm.Add(c1)
	cm.Add(c2)

	if cm.Count() != 2 {
		t.Fatalf("expected 2 connections, got %d", cm.Count())
	}
	if got := cm.Get("conn-1"); got != c1 {
		t.Error("Get returned the wrong connection")
	}
	if got := cm.GetByFd(11); got != c2 {
		t.Error("GetByFd returned the wrong connection")
	}

	if !cm.Remove("conn-1") {
		t.Error("Remove reported the connection missing")
	}
	if cm.Get("conn-1") != nil {
		t.Error("removed connection still retrievable")
	}
	if cm.Count() != 1 {
		t.Errorf("expected 1 connection after removal, got %d", cm.Count())
	}

	// Removing again reports false.
	if cm.Remove("conn-1") {
		t.Error("second Remove reported success")
	}
}

func TestConnectionManagerAll(t *testing.T) {
	cm := NewConnectionManager()

	c1, peer1 := newTestConnection("conn-1", "user-1", 10)
	defer peer1.Close()
	c2, peer2 := newTestConnection("conn-2", "user-2", 11)
	defer peer2.Close()

	cm.Add(c1)
	cm.Add(c2)

	all := cm.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(all))
	}

	seen := make(map[string]bool)
	for _, c := range all {
		seen[c.ID] = true
	}
	if !seen["conn-1"] || !seen["conn-2"] {
		t.Errorf("snapshot missing connections: %v", seen)
	}
}

func TestRemoveClosesConnection(t *testing.T) {
	cm := NewConnectionManager()

	c, peer := newTestConnection("conn-1", "user-1", 10)
	cm.Add(c)
	cm.Remove("conn-1")

	// The peer observes the close.
	peer.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := peer.Read(buf); err == nil {
		t.Error("expected read error after connection removal")
	}
}
