package hostlink

import (
	"bytes"
	"testing"
)

func TestPollReturnsBufferedCommand(t *testing.T) {
	l := New(&bytes.Buffer{})
	queue := []byte{EnableCmd}
	pop := func() (byte, bool) {
		if len(queue) == 0 {
			return 0, false
		}
		b := queue[0]
		queue = queue[1:]
		return b, true
	}
	cmd, ok := l.Poll(pop)
	if !ok || cmd != EnableCmd {
		t.Fatalf("expected EnableCmd, got %v ok=%v", cmd, ok)
	}
	_, ok = l.Poll(pop)
	if ok {
		t.Fatal("expected no command on second poll")
	}
}

func TestReadPIN(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xD4, 0xC3, 0xB2, 0xA1})
	l := New(buf)
	pin, err := l.ReadPIN()
	if err != nil {
		t.Fatal(err)
	}
	if pin != 0xA1B2C3D4 {
		t.Fatalf("got pin %#x, want 0xA1B2C3D4", pin)
	}
}

func TestReadFeatureInstall(t *testing.T) {
	payload := append([]byte{2}, bytes.Repeat([]byte{0xAB}, 64)...)
	l := New(bytes.NewBuffer(payload))
	idx, pkg, err := l.ReadFeatureInstall()
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Fatalf("got feature index %d, want 1 (n=2 -> n-1)", idx)
	}
	if !bytes.Equal(pkg[:], bytes.Repeat([]byte{0xAB}, 64)) {
		t.Fatal("package payload mismatch")
	}
}

func TestWriteUnlockBlob(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	blob := bytes.Repeat([]byte{0x7E}, 64)
	if err := l.WriteUnlockBlob(blob); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), blob) {
		t.Fatal("unlock blob not written verbatim")
	}
}
