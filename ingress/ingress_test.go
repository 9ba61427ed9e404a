package ingress

import (
	"context"
	"strings"
	"testing"

	configpkg "github.com/drblury/reqflow/internal/runtime/config"
	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

type fakeAdapter struct{ name string }

func (f *fakeAdapter) Serve(ctx context.Context, handle Handler) error { return nil }
func (f *fakeAdapter) Close(ctx context.Context) error                 { return nil }

func fakeBuilder(name string) Builder {
	return func(configpkg.Config, loggingpkg.ServiceLogger) (Adapter, error) {
		return &fakeAdapter{name: name}, nil
	}
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fake", fakeBuilder("fake"))

	adapter, err := reg.Build("fake", configpkg.Config{}, loggingpkg.NewNopLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := adapter.(*fakeAdapter).name; got != "fake" {
		t.Fatalf("built wrong adapter: %q", got)
	}
}

func TestRegistryUnknownAdapter(t *testing.T) {
	reg := NewRegistry()
	reg.Register("aaa", fakeBuilder("aaa"))

	_, err := reg.Build("missing", configpkg.Config{}, loggingpkg.NewNopLogger())
	if err == nil {
		t.Fatal("expected error for unknown adapter")
	}
	if !strings.Contains(err.Error(), "aaa") {
		t.Fatalf("error should list registered names: %v", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("zeta", fakeBuilder("zeta"))
	reg.Register("alpha", fakeBuilder("alpha"))

	names := reg.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("expected sorted names, got %v", names)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	reg := NewRegistry()
	reg.Register("dup", fakeBuilder("first"))
	reg.Register("dup", fakeBuilder("second"))

	adapter, err := reg.Build("dup", configpkg.Config{}, loggingpkg.NewNopLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := adapter.(*fakeAdapter).name; got != "second" {
		t.Fatalf("expected last registration to win, got %q", got)
	}
}
