package ai

import (
	"context"
	"testing"
)

type stubProvider struct{ name string }

func (p *stubProvider) Respond(ctx context.Context, messages []Message) (Reply, error) {
	_ = ctx
	_ = messages
	return Reply{Text: p.name}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Fake", func(ctx context.Context) (Provider, error) {
		_ = ctx
		return &stubProvider{name: "fake"}, nil
	})

	// lookup is case-insensitive and trims whitespace
	p, err := reg.Get(context.Background(), "  fake ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	reply, err := p.Respond(context.Background(), nil)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Text != "fake" {
		t.Fatalf("unexpected provider: %q", reply.Text)
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
