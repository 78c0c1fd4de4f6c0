package ring

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testRingName(t *testing.T) string {
	return fmt.Sprintf("/ringtest_%s_%d", t.Name(), time.Now().UnixNano())
}

func mustCreate(t *testing.T, name string, slotCount, slotSize uint32) *Ring {
	t.Helper()
	r, err := Create(name, slotCount, slotSize)
	if err != nil {
		t.Fatalf("Create(%s): %v", name, err)
	}
	t.Cleanup(func() {
		r.Close()
		r.UnlinkResources()
	})
	return r
}

func TestWriteReadRoundTrip(t *testing.T) {
	name := testRingName(t)
	r := mustCreate(t, name, 4, 64)

	want := []byte("hello shared memory")
	if err := r.WriteMessage(want); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestZeroLengthMessage(t *testing.T) {
	name := testRingName(t)
	r := mustCreate(t, name, 4, 64)

	if err := r.WriteMessage(nil); err != nil {
		t.Fatalf("WriteMessage(nil): %v", err)
	}
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

func TestFIFOOrdering(t *testing.T) {
	name := testRingName(t)
	r := mustCreate(t, name, 4, 64)

	for i := 0; i < 4; i++ {
		if err := r.WriteMessage([]byte(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatalf("WriteMessage %d: %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		got, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage %d: %v", i, err)
		}
		want := fmt.Sprintf("msg-%d", i)
		if string(got) != want {
			t.Fatalf("message %d: got %q, want %q", i, got, want)
		}
	}
}

func TestSingleSlotNoDeadlock(t *testing.T) {
	name := testRingName(t)
	r := mustCreate(t, name, 1, 16)

	for i := 0; i < 8; i++ {
		msg := []byte(fmt.Sprintf("m%d", i))
		if err := r.WriteMessage(msg); err != nil {
			t.Fatalf("WriteMessage %d: %v", i, err)
		}
		got, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage %d: %v", i, err)
		}
		if string(got) != string(msg) {
			t.Fatalf("iteration %d: got %q, want %q", i, got, msg)
		}
	}
}

func TestFullRingBlocksUntilRead(t *testing.T) {
	name := testRingName(t)
	r := mustCreate(t, name, 2, 16)

	if err := r.WriteMessage([]byte("a")); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := r.WriteMessage([]byte("b")); err != nil {
		t.Fatalf("write b: %v", err)
	}

	writeDone := make(chan error, 1)
	go func() {
		writeDone <- r.WriteMessage([]byte("c"))
	}()

	select {
	case <-writeDone:
		t.Fatal("WriteMessage returned before any slot was freed")
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := r.ReadMessage(); err != nil {
		t.Fatalf("read a: %v", err)
	}

	select {
	case err := <-writeDone:
		if err != nil {
			t.Fatalf("WriteMessage c: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WriteMessage did not unblock after a slot was freed")
	}
}

func TestEmptyRingBlocksUntilWrite(t *testing.T) {
	name := testRingName(t)
	r := mustCreate(t, name, 2, 16)

	readDone := make(chan []byte, 1)
	readErr := make(chan error, 1)
	go func() {
		got, err := r.ReadMessage()
		readErr <- err
		readDone <- got
	}()

	select {
	case <-readDone:
		t.Fatal("ReadMessage returned before any message was written")
	case <-time.After(100 * time.Millisecond):
	}

	if err := r.WriteMessage([]byte("unblock")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	select {
	case err := <-readErr:
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		got := <-readDone
		if string(got) != "unblock" {
			t.Fatalf("got %q, want %q", got, "unblock")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadMessage did not unblock after a message was written")
	}
}

func TestPayloadTooLargeDoesNotConsumeFreeToken(t *testing.T) {
	name := testRingName(t)
	r := mustCreate(t, name, 2, 4)

	err := r.WriteMessage([]byte("too-long-for-four-bytes"))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("got %v, want ErrPayloadTooLarge", err)
	}

	for i := 0; i < 2; i++ {
		if err := r.WriteMessage([]byte("ok")); err != nil {
			t.Fatalf("WriteMessage %d after rejection: %v", i, err)
		}
	}
}

func TestExactSlotSizePayloadSucceeds(t *testing.T) {
	name := testRingName(t)
	r := mustCreate(t, name, 2, 4)

	payload := []byte("abcd")
	if err := r.WriteMessage(payload); err != nil {
		t.Fatalf("WriteMessage of exactly slot_size bytes: %v", err)
	}

	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestAttachBeforeCreateSucceeds(t *testing.T) {
	name := testRingName(t)

	var owner *Ring
	var attachErr error
	var attachee *Ring
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		attachee, attachErr = Attach(name)
	}()

	time.Sleep(50 * time.Millisecond)
	owner, err := Create(name, 4, 32)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() {
		owner.Close()
		owner.UnlinkResources()
	}()

	wg.Wait()
	if attachErr != nil {
		t.Fatalf("Attach raced Create: %v", attachErr)
	}
	defer attachee.Close()

	if attachee.SlotCount() != 4 || attachee.SlotSize() != 32 {
		t.Fatalf("attachee geometry = (%d,%d), want (4,32)", attachee.SlotCount(), attachee.SlotSize())
	}
}

func TestAttachAdoptsHeaderGeometry(t *testing.T) {
	name := testRingName(t)
	owner := mustCreate(t, name, 8, 256)

	attachee, err := Attach(name)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer attachee.Close()

	if attachee.SlotCount() != owner.SlotCount() || attachee.SlotSize() != owner.SlotSize() {
		t.Fatalf("attachee geometry (%d,%d) != owner geometry (%d,%d)",
			attachee.SlotCount(), attachee.SlotSize(), owner.SlotCount(), owner.SlotSize())
	}
}

func TestAttacheeUnlinkIsNoop(t *testing.T) {
	name := testRingName(t)
	owner := mustCreate(t, name, 2, 16)

	attachee, err := Attach(name)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := attachee.UnlinkResources(); err != nil {
		t.Fatalf("attachee UnlinkResources: %v", err)
	}
	attachee.Close()

	if err := owner.WriteMessage([]byte("still alive")); err != nil {
		t.Fatalf("ring was unlinked by attachee: %v", err)
	}
}
