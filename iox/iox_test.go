package iox

import (
	"errors"
	"strings"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestTailBuffer_RetainsTail(t *testing.T) {
	tb := NewTailBuffer(8)
	if _, err := tb.Write([]byte("abcdefgh")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := tb.Write([]byte("ijkl")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := tb.String(); got != "efghijkl" {
		t.Errorf("tail = %q, want %q", got, "efghijkl")
	}
	if tb.Total() != 12 {
		t.Errorf("total = %d, want 12", tb.Total())
	}
}

func TestTailBuffer_OversizedWrite(t *testing.T) {
	tb := NewTailBuffer(4)
	if _, err := tb.Write([]byte(strings.Repeat("x", 100) + "tail")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := tb.String(); got != "tail" {
		t.Errorf("tail = %q, want %q", got, "tail")
	}
}

func TestTailBuffer_Reset(t *testing.T) {
	tb := NewTailBuffer(16)
	_, _ = tb.Write([]byte("data"))
	tb.Reset()
	if tb.String() != "" || tb.Total() != 0 {
		t.Error("reset did not clear buffer")
	}
}
