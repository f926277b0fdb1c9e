package di

import (
	"strings"
	"testing"
)

type greeter struct{ name string }

func TestContainerResolve(t *testing.T) {
	c := NewContainer()
	c.Register("greeter", &greeter{name: "ada"})
	c.Register("count", 3)

	g, err := Resolve[*greeter](c, "greeter")
	if err != nil || g.name != "ada" {
		t.Fatalf("Resolve = %v, %v", g, err)
	}

	if _, err := Resolve[*greeter](c, "missing"); err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Errorf("missing: %v", err)
	}
	if _, err := Resolve[*greeter](c, "count"); err == nil {
		t.Error("wrong type resolved")
	}

	if names := c.GetNames(); len(names) != 2 || names[0] != "count" {
		t.Errorf("names = %v", names)
	}

	c.Remove("count")
	if c.Has("count") {
		t.Error("Remove did not remove")
	}
}

func TestMustResolvePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustResolve[*greeter](NewContainer(), "greeter")
}

func TestContainersAreIndependent(t *testing.T) {
	a, b := NewContainer(), NewContainer()
	a.Register(ServiceHub, 1)
	if b.Has(ServiceHub) {
		t.Error("containers share state")
	}
}
