package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func record(order *[]string, name string) Hook {
	return func(context.Context) error {
		*order = append(*order, name)
		return nil
	}
}

func TestRun_PhaseOrder(t *testing.T) {
	m := New()
	var order []string

	m.OnReady("ready", record(&order, "ready"))
	m.OnPostConfig("post", record(&order, "post"))
	m.OnBootstrap("boot", record(&order, "boot"))

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "boot,post,ready"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestRun_PostConfigPriority(t *testing.T) {
	m := New()
	var order []string

	m.OnPostConfigPriority("late", -1, record(&order, "late"))
	m.OnPostConfig("loader", record(&order, "loader"))
	m.OnPostConfigPriority("early", 0, record(&order, "early"))
	m.OnPostConfigPriority("first", 10, record(&order, "first"))
	m.OnPostConfig("loader2", record(&order, "loader2"))
	m.OnPostConfigPriority("last", -5, record(&order, "last"))

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "first,early,loader,loader2,late,last"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestRun_LoaderBetweenEarlyAndLate(t *testing.T) {
	m := New()
	loaded := false
	var sawAtEarly, sawAtLate bool

	m.OnPostConfigPriority("early", 0, func(context.Context) error {
		sawAtEarly = loaded
		return nil
	})
	m.OnPostConfigPriority("late", -1, func(context.Context) error {
		sawAtLate = loaded
		return nil
	})
	m.OnPostConfig("loader", func(context.Context) error {
		loaded = true
		return nil
	})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sawAtEarly {
		t.Error("priority 0 hook saw loader already run")
	}
	if !sawAtLate {
		t.Error("priority -1 hook ran before loader")
	}
}

func TestRun_HookErrorAborts(t *testing.T) {
	m := New()
	boom := errors.New("boom")
	readyRan := false

	m.OnPostConfig("loader", func(context.Context) error { return boom })
	m.OnReady("ready", func(context.Context) error {
		readyRan = true
		return nil
	})

	err := m.Run(context.Background())
	if !errors.Is(err, ErrHookFailed) || !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want ErrHookFailed wrapping boom", err)
	}
	if !strings.Contains(err.Error(), "post_config/loader") {
		t.Errorf("error %q should name the hook", err)
	}
	if readyRan {
		t.Error("ready hook ran after failure")
	}
	if m.Reached(PhaseReady) {
		t.Error("Reached(PhaseReady) = true after failure")
	}
}

func TestRun_Once(t *testing.T) {
	m := New()
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := m.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRun", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	m := New()
	ran := false
	m.OnBootstrap("boot", func(context.Context) error {
		ran = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("hook ran with cancelled context")
	}
}

func TestPhaseString(t *testing.T) {
	if PhasePostConfig.String() != "post_config" || Phase(9).String() != "phase(9)" {
		t.Error("Phase.String() mismatch")
	}
}
