package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/appraise/session"
)

func TestReadURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "# office listings\nhttps://www.avito.ru/a_1\n\n  https://www.cian.ru/rent/commercial/2/  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	urls, err := readURLs(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 || urls[1] != "https://www.cian.ru/rent/commercial/2/" {
		t.Errorf("urls = %q", urls)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	_ = os.WriteFile(empty, []byte("# nothing\n"), 0o644)
	if _, err := readURLs(empty); err == nil {
		t.Error("expected an error for a file without URLs")
	}
	if _, err := readURLs(""); err == nil {
		t.Error("expected an error without a path")
	}
}

func TestRunOutput(t *testing.T) {
	tests := []struct{ base, want string }{
		{"listings.json", "listings-r1.json"},
		{"out/listings.json", "out/listings-r1.json"},
		{"listings", "listings-r1"},
	}
	for _, tt := range tests {
		if got := runOutput(tt.base, "r1"); got != tt.want {
			t.Errorf("runOutput(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStdinOperator(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	out := &syncBuffer{}
	op := newStdinOperator(r, out)

	gate := session.NewGate()
	op.Notify(context.Background(), session.Intervention{URL: "https://www.avito.ru/a_1", Reason: session.ReasonBlocked, Gate: gate})
	if !strings.Contains(out.String(), "https://www.avito.ru/a_1") {
		t.Errorf("prompt = %q", out.String())
	}

	if _, err := w.Write([]byte("\n")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-gate.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Enter did not resume the gate")
	}
}
