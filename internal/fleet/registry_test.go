package fleet_test

import (
	"context"
	"reflect"
	"testing"

	"lumen/internal/customization"
	"lumen/internal/testsupport"
)

func TestUnisonAdjustPropagatesScaledDelta(t *testing.T) {
	h := newHarness(t, 4)
	monA := h.enum.Attach("A", testsupport.NewFakeMonitor(50))
	monB := h.enum.Attach("B", testsupport.NewFakeMonitor(25))
	monC := h.enum.Attach("C", testsupport.NewFakeMonitor(10))
	h.store.Save("A", customization.Customization{IsUnison: true, Lowest: 0, Highest: 100})
	h.store.Save("B", customization.Customization{IsUnison: true, Lowest: 0, Highest: 50})
	h.enum.SetSnapshots(testsupport.Snapshot("A"), testsupport.Snapshot("B"), testsupport.Snapshot("C"))
	h.scan(t)

	a, b, c := h.entry(t, "A"), h.entry(t, "B"), h.entry(t, "C")
	ctx := context.Background()

	a.Adjust(ctx, 60, false)
	if got := b.View().Brightness; got != 30 {
		t.Fatalf("expected B at 30, got %d", got)
	}
	if got := c.View().Brightness; got != 10 {
		t.Fatalf("expected C unchanged at 10, got %d", got)
	}
	if len(monA.Sets()) != 0 || len(monB.Sets()) != 0 {
		t.Fatal("live adjustment must not write to monitors")
	}

	if !a.Adjust(ctx, 60, true) {
		t.Fatal("expected origin commit to succeed")
	}
	b.WaitCommits()
	if got := monA.Sets(); !reflect.DeepEqual(got, []int{60}) {
		t.Fatalf("expected origin written once at 60, got %v", got)
	}
	if got := monB.Sets(); !reflect.DeepEqual(got, []int{30}) {
		t.Fatalf("expected flush to persist B at 30, got %v", got)
	}
	if len(monC.Sets()) != 0 {
		t.Fatal("non-unison monitor must not be written")
	}
}

func TestUnisonClampsToSubscriberRange(t *testing.T) {
	h := newHarness(t, 4)
	h.enum.Attach("A", testsupport.NewFakeMonitor(50))
	monB := h.enum.Attach("B", testsupport.NewFakeMonitor(35))
	h.store.Save("A", customization.Customization{IsUnison: true, Lowest: 0, Highest: 100})
	h.store.Save("B", customization.Customization{IsUnison: true, Lowest: 20, Highest: 40})
	h.enum.SetSnapshots(testsupport.Snapshot("A"), testsupport.Snapshot("B"))
	h.scan(t)

	a, b := h.entry(t, "A"), h.entry(t, "B")
	a.Adjust(context.Background(), 100, true)
	b.WaitCommits()
	if got := monB.Sets(); !reflect.DeepEqual(got, []int{40}) {
		t.Fatalf("expected B clamped to its highest, got %v", got)
	}
}

func TestSaveCustomizationAppliesToTrackedEntry(t *testing.T) {
	h := newHarness(t, 4)
	h.enum.Attach("ddc:DEL:1", testsupport.NewFakeMonitor(40))
	h.enum.SetSnapshots(testsupport.Snapshot("ddc:DEL:1"))
	h.scan(t)

	if !h.reg.SaveCustomization("DDC:del:1", customization.Customization{Name: "Left", IsUnison: true, Lowest: 20, Highest: 60}) {
		t.Fatal("expected valid customization stored")
	}
	view := h.entry(t, "ddc:DEL:1").View()
	if view.Name != "Left" || !view.Unison || view.Customization == nil {
		t.Fatalf("expected customization applied, got %+v", view)
	}
	if view.AdjustedBrightness != 50 {
		t.Fatalf("expected 40 in [20,60] to read as 50, got %d", view.AdjustedBrightness)
	}
	got, ok := h.reg.TryLoadCustomization("ddc:del:1")
	if !ok || got.Highest != 60 {
		t.Fatalf("TryLoadCustomization = %+v, %v", got, ok)
	}

	if h.reg.SaveCustomization("ddc:DEL:1", customization.Customization{Lowest: 70, Highest: 30}) {
		t.Fatal("expected invalid range to clear")
	}
	view = h.entry(t, "ddc:DEL:1").View()
	if view.Customization != nil || view.Unison || view.Name != "ddc:DEL:1" {
		t.Fatalf("expected customization cleared, got %+v", view)
	}
}

func TestNewEntryLoadsStoredCustomization(t *testing.T) {
	h := newHarness(t, 4)
	h.store.Save("mon", customization.Customization{Name: "Desk", Lowest: 0, Highest: 100})
	h.enum.SetSnapshots(testsupport.Snapshot("MON"))
	h.scan(t)

	if got := h.entry(t, "mon").View().Name; got != "Desk" {
		t.Fatalf("expected stored name on creation, got %q", got)
	}
}

func TestSetContrastRecordsSupport(t *testing.T) {
	h := newHarness(t, 4)
	h.enum.Attach("A", testsupport.NewFakeMonitor(40).WithContrast(50))
	h.enum.Attach("P", testsupport.NewFakeMonitor(40))
	h.enum.SetSnapshots(testsupport.Snapshot("A"), testsupport.Snapshot("P"))
	h.scan(t)
	ctx := context.Background()

	if !h.entry(t, "A").SetContrast(ctx, 80) {
		t.Fatal("expected contrast write to succeed")
	}
	if v := h.entry(t, "A").View(); !v.HasContrast || v.Contrast != 80 {
		t.Fatalf("unexpected contrast view %+v", v)
	}

	panel := h.entry(t, "P")
	panel.UpdateContrast(ctx)
	panel.UpdateContrast(ctx)
	if !panel.Controllable() {
		t.Fatal("contrast reads on a monitor without contrast must not demote it")
	}
}

func TestFailedCommitKeepsAcceptedBrightness(t *testing.T) {
	h := newHarness(t, 4)
	mon := h.enum.Attach("A", testsupport.NewFakeMonitor(40))
	h.enum.SetSnapshots(testsupport.Snapshot("A"))
	h.scan(t)
	a := h.entry(t, "A")
	ctx := context.Background()

	mon.FailNext(1)
	if a.Adjust(ctx, 70, true) {
		t.Fatal("expected the commit write to fail")
	}
	if got := a.View().Brightness; got != 40 {
		t.Fatalf("expected brightness to stay at the accepted 40, got %d", got)
	}
	if mon.Brightness() != 40 {
		t.Fatalf("expected monitor untouched, got %d", mon.Brightness())
	}

	if !a.Adjust(ctx, 70, true) {
		t.Fatal("expected retried commit to succeed")
	}
	if got := a.View().Brightness; got != 70 {
		t.Fatalf("expected brightness 70 after a successful commit, got %d", got)
	}

	a.Adjust(ctx, 20, false)
	if got := a.View().Brightness; got != 20 || mon.Brightness() != 70 {
		t.Fatalf("expected preview to move only the view, view=%d monitor=%d", got, mon.Brightness())
	}
}
