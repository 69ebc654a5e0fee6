package livediff

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegistryRegisterAndNew(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("greeting", []string{"<p>", "</p>"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tree, err := r.New("greeting", Scalar("hello"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := Flatten(tree); got != "<p>hello</p>" {
		t.Errorf("Flatten = %q, want <p>hello</p>", got)
	}

	// Wrong arity against a registered site
	if _, err := r.New("greeting", Scalar("a"), Scalar("b")); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("expected ErrArityMismatch, got %v", err)
	}

	if _, err := r.New("unknown"); err == nil {
		t.Error("expected error for unknown site")
	}
}

func TestRegistryReRegister(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("site", []string{"<p>", "</p>"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Identical statics are a no-op.
	if err := r.Register("site", []string{"<p>", "</p>"}); err != nil {
		t.Errorf("idempotent re-register failed: %v", err)
	}

	// Conflicting statics are a bug upstream.
	err := r.Register("site", []string{"<div>", "</div>"})
	if !errors.Is(err, ErrStructuralMismatch) {
		t.Errorf("expected ErrStructuralMismatch, got %v", err)
	}
}

func TestRegistryValidation(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("", []string{"x"}); err == nil {
		t.Error("expected error for empty site name")
	}
	if err := r.Register("site", nil); !errors.Is(err, ErrArityMismatch) {
		t.Errorf("expected ErrArityMismatch for empty statics, got %v", err)
	}
}

func TestRegistryStaticsCopies(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("site", []string{"<p>", "</p>"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	statics, ok := r.Statics("site")
	if !ok {
		t.Fatal("expected registered site")
	}
	statics[0] = "mutated"

	fresh, _ := r.Statics("site")
	if fresh[0] != "<p>" {
		t.Error("registry statics mutated through accessor")
	}
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			site := fmt.Sprintf("site-%d", n)
			if err := r.Register(site, []string{"<p>", "</p>"}); err != nil {
				t.Errorf("Register failed: %v", err)
			}
			for j := 0; j < 50; j++ {
				if _, err := r.New(site, Scalar("v")); err != nil {
					t.Errorf("New failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
}
