package presenter

import (
	"testing"

	"github.com/MJE43/stargift-miniapp/internal/catalog"
	"github.com/MJE43/stargift-miniapp/internal/roulette"
)

func testPrize() *roulette.Item {
	return &roulette.Item{Gift: &catalog.GiftDefinition{ID: "rose", Label: "Rose", BasePrice: 25}, Weight: 26}
}

func TestPresenterLifecycle(t *testing.T) {
	p := New()
	if v := p.View(); v.Stage != StageHidden || v.Mounted || v.Visible {
		t.Fatalf("new presenter should be hidden, got %+v", v)
	}

	prize := testPrize()
	p.Reveal(prize, ModePaid)
	v := p.View()
	if v.Stage != StageVisible || !v.Visible || !v.JustEntered || !v.Mounted {
		t.Fatalf("after Reveal: %+v", v)
	}
	if v.Prize != prize {
		t.Errorf("View().Prize is not the revealed instance")
	}
	if v.Title != Title || v.Message != MessagePaid || v.ShowDisableDemo {
		t.Errorf("paid copy wrong: %+v", v)
	}

	p.Settle()
	if p.View().JustEntered {
		t.Errorf("Settle should clear JustEntered")
	}

	if !p.Close() {
		t.Fatal("Close from visible should succeed")
	}
	v = p.View()
	if v.Stage != StageClosing || v.Visible || !v.Mounted || v.Prize != prize {
		t.Fatalf("closing stage should keep the prize mounted but invisible: %+v", v)
	}
	if p.Close() {
		t.Error("second Close should be a no-op")
	}

	p.Clear()
	if v := p.View(); v.Stage != StageHidden || v.Mounted || v.Prize != nil || v.Message != "" {
		t.Fatalf("after Clear: %+v", v)
	}
}

func TestPresenterDemoCopy(t *testing.T) {
	p := New()
	p.Reveal(testPrize(), ModeDemo)
	v := p.View()
	if v.Message != MessageDemo {
		t.Errorf("demo message = %q", v.Message)
	}
	if !v.ShowDisableDemo {
		t.Errorf("demo reveal should offer disabling demo mode")
	}
}

func TestPresenterRevealWhileClosing(t *testing.T) {
	p := New()
	p.Reveal(testPrize(), ModeDemo)
	p.Close()

	next := testPrize()
	p.Reveal(next, ModePaid)
	v := p.View()
	if v.Stage != StageVisible || v.Prize != next || v.Mode != ModePaid {
		t.Fatalf("reveal over a closing overlay: %+v", v)
	}
}

func TestSettleOnlyWhenVisible(t *testing.T) {
	p := New()
	p.Settle()
	if p.Stage() != StageHidden {
		t.Fatalf("Settle changed a hidden presenter")
	}
	if p.Close() {
		t.Errorf("Close on hidden presenter should report false")
	}
}
