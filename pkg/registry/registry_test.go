package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestBaseRegistry_Order(t *testing.T) {
	r := NewBaseRegistry[int]()
	for i, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(name, i); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"zeta", "alpha", "mid"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}

	items := r.List()
	if items[0] != 0 || items[1] != 1 || items[2] != 2 {
		t.Errorf("List() = %v, want registration order", items)
	}
}

func TestBaseRegistry_Errors(t *testing.T) {
	r := NewBaseRegistry[string]()

	if err := r.Register("", "x"); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name error = %v", err)
	}
	if err := r.Register("a", "x"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("a", "y"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate error = %v", err)
	}
	if v, _ := r.Get("a"); v != "x" {
		t.Errorf("duplicate registration replaced the item: %q", v)
	}
	if err := r.Remove("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove missing error = %v", err)
	}
}

func TestBaseRegistry_Remove(t *testing.T) {
	r := NewBaseRegistry[int]()
	_ = r.Register("a", 1)
	_ = r.Register("b", 2)
	_ = r.Register("c", 3)

	if err := r.Remove("b"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
	if names := r.Names(); len(names) != 2 || names[0] != "a" || names[1] != "c" {
		t.Errorf("Names() = %v", names)
	}
	if _, ok := r.Get("b"); ok {
		t.Error("Get(b) should fail after removal")
	}
}

func TestBaseRegistry_Concurrent(t *testing.T) {
	r := NewBaseRegistry[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("item-%d", i), i)
			_ = r.List()
		}(i)
	}
	wg.Wait()

	if r.Count() != 50 {
		t.Errorf("Count() = %d, want 50", r.Count())
	}
}
