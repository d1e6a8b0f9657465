package id

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		prefix string
	}{
		{SandboxPrefix},
		{RequestPrefix},
		{BusPrefix},
	}

	for _, tt := range tests {
		id := gen.GenerateWithPrefix(tt.prefix)

		if !strings.HasPrefix(id, tt.prefix+"_") {
			t.Errorf("ID should start with '%s_', got: %s", tt.prefix, id)
		}

		parts := strings.Split(id, "_")
		if len(parts) != 2 {
			t.Errorf("Prefixed ID should have format 'prefix_ulid', got: %s", id)
		}

		if !IsValid(parts[1]) {
			t.Errorf("ULID part should be valid: %s", parts[1])
		}
	}
}

func TestTypedGenerators(t *testing.T) {
	if !strings.HasPrefix(string(NewSandboxID()), "sbx_") {
		t.Error("sandbox ID should carry sbx_ prefix")
	}
	if !strings.HasPrefix(string(NewRequestID()), "req_") {
		t.Error("request ID should carry req_ prefix")
	}
	if !strings.HasPrefix(string(NewBusEventID()), "bus_") {
		t.Error("bus event ID should carry bus_ prefix")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const n = 100
	seen := sync.Map{}
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.GenerateString()
			if _, loaded := seen.LoadOrStore(id, true); loaded {
				t.Errorf("duplicate ID generated: %s", id)
			}
		}()
	}
	wg.Wait()
}
