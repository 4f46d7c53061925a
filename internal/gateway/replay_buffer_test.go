package gateway

import "testing"

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)

	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, e := range got {
		expected := int64(i) + 3
		if e.Seq != expected {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, expected)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(8)

	// 11 entries into 8 slots evicts the first 3
	for i := int64(1); i <= 11; i++ {
		rb.Push(i, []byte("msg"))
	}

	if rb.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", rb.Len())
	}

	got := rb.Range(1, 20)
	if len(got) != 8 {
		t.Fatalf("Range(1,20): expected 8, got %d", len(got))
	}
	if got[0].Seq != 4 {
		t.Errorf("oldest entry seq = %d, want 4", got[0].Seq)
	}
	if got[7].Seq != 11 {
		t.Errorf("newest entry seq = %d, want 11", got[7].Seq)
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(4)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'X'
	if got := rb.Range(1, 1); string(got[0].Data) != "abc" {
		t.Errorf("buffer aliased caller slice: %s", got[0].Data)
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	got := rb.Range(1, 100)
	if len(got) != 0 {
		t.Fatalf("empty buffer Range should return 0, got %d", len(got))
	}
}
