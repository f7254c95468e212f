package id

import (
	"strings"
	"sync"
	"testing"
	"time"
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

func TestNewInstanceID(t *testing.T) {
	id := NewInstanceID()

	if !strings.HasPrefix(id.String(), InstancePrefix+"_") {
		t.Errorf("instance ID should start with '%s_', got: %s", InstancePrefix, id)
	}
	if !IsValid(id.String(), InstancePrefix) {
		t.Errorf("instance ID should be a valid prefixed ULID: %s", id)
	}
	if IsValid(id.String(), RequestPrefix) {
		t.Error("instance ID should not validate under the request prefix")
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := NewInstanceID()
	after := time.Now().Add(time.Second)

	ts, err := Timestamp(id.String(), InstancePrefix)
	if err != nil {
		t.Fatalf("Timestamp failed: %v", err)
	}
	if ts.Before(before) || ts.After(after) {
		t.Errorf("timestamp %v outside expected window [%v, %v]", ts, before, after)
	}

	if _, err := Timestamp("bogus", InstancePrefix); err == nil {
		t.Error("expected error for unprefixed id")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	ids := make(chan string, workers*perWorker)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- gen.GenerateString()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}
