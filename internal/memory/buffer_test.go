package memory_test

import (
	"testing"

	"github.com/memkeep/memkeep/internal/memory"
)

func testMsg(text string) memory.Message {
	return memory.Message{Role: memory.RoleUser, Text: text, Timestamp: 1}
}

func TestBuffer_AppendAndAll(t *testing.T) {
	t.Parallel()

	buf := memory.NewBuffer()
	if got := buf.All(); got != nil {
		t.Fatalf("All on empty buffer = %v, want nil", got)
	}

	texts := []string{"one", "two", "three"}
	for _, text := range texts {
		buf.Append(testMsg(text))
	}

	all := buf.All()
	if len(all) != 3 {
		t.Fatalf("All: got %d messages, want 3", len(all))
	}
	for i, m := range all {
		if m.Text != texts[i] {
			t.Errorf("All[%d].Text = %q, want %q", i, m.Text, texts[i])
		}
	}
	if buf.Len() != 3 {
		t.Errorf("Len = %d, want 3", buf.Len())
	}
}

func TestBuffer_AllReturnsCopy(t *testing.T) {
	t.Parallel()

	buf := memory.NewBuffer()
	buf.Append(testMsg("original"))

	all := buf.All()
	all[0].Text = "mutated"

	if got := buf.All()[0].Text; got != "original" {
		t.Fatalf("buffer content after mutating copy = %q, want %q", got, "original")
	}
}

func TestBuffer_Replace(t *testing.T) {
	t.Parallel()

	buf := memory.NewBuffer()
	buf.Append(testMsg("a"))
	buf.Append(testMsg("b"))

	replacement := []memory.Message{testMsg("x")}
	buf.Replace(replacement)

	if buf.Len() != 1 {
		t.Fatalf("Len after Replace = %d, want 1", buf.Len())
	}
	if got := buf.All()[0].Text; got != "x" {
		t.Errorf("All[0].Text = %q, want %q", got, "x")
	}

	// Replacing with nil empties the buffer.
	buf.Replace(nil)
	if buf.Len() != 0 || buf.Size() != 0 {
		t.Errorf("Len, Size after Replace(nil) = %d, %d, want 0, 0", buf.Len(), buf.Size())
	}
}

func TestBuffer_SizeAccounting(t *testing.T) {
	t.Parallel()

	buf := memory.NewBuffer()

	m1 := testMsg("hello")
	m2 := testMsg("world!")
	buf.Append(m1)
	buf.Append(m2)

	want := memory.EstimateSize(m1) + memory.EstimateSize(m2)
	if got := buf.Size(); got != want {
		t.Fatalf("Size = %d, want %d", got, want)
	}

	buf.Replace([]memory.Message{m1})
	if got := buf.Size(); got != memory.EstimateSize(m1) {
		t.Fatalf("Size after Replace = %d, want %d", got, memory.EstimateSize(m1))
	}
}

func TestEstimateSize(t *testing.T) {
	t.Parallel()

	m := memory.Message{Role: memory.RoleUser, Text: "hello", Timestamp: 42}
	// role(4) + text(5) + timestamp footprint(8)
	if got := memory.EstimateSize(m); got != 17 {
		t.Fatalf("EstimateSize = %d, want 17", got)
	}

	msgs := []memory.Message{m, m}
	if got := memory.EstimateTotalSize(msgs); got != 34 {
		t.Fatalf("EstimateTotalSize = %d, want 34", got)
	}
}
