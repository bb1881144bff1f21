package server

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/textmoor/textmoor/pkg/events"
)

func TestDescriptorReceiveNeverBlocks(t *testing.T) {
	// The far end of the pipe never reads, so the writer goroutine wedges
	// on its first socket write. Receive must still return immediately and
	// drop the connection once the queue fills.
	server, client := net.Pipe()
	defer client.Close()
	d := NewDescriptor(server)

	start := time.Now()
	for i := 0; i < outboundBuffer+8; i++ {
		d.Receive(events.Event{Type: events.TypeText, Text: fmt.Sprintf("line %d", i)})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("enqueueing against a dead reader took %v", elapsed)
	}
	if !d.Closed() {
		t.Error("descriptor still open after its outbound queue overflowed")
	}
}

func TestDescriptorWriterDeliversInOrder(t *testing.T) {
	server, client := net.Pipe()
	d := NewDescriptor(server)
	defer d.Close()
	defer client.Close()

	want := []string{"first", "second", "third"}
	for _, msg := range want {
		d.Receive(events.Event{Type: events.TypeText, Text: msg})
	}

	r := bufio.NewReader(client)
	for i, w := range want {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read line %d: %v", i, err)
		}
		if got := line[:len(line)-2]; got != w {
			t.Errorf("line %d = %q, want %q", i, got, w)
		}
	}
}

func TestDescriptorReceiveAfterCloseIsNoop(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	d := NewDescriptor(server)
	d.Close()

	d.Receive(events.Event{Type: events.TypeText, Text: "too late"})
	d.Close()
}
