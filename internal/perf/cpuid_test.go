package perf

import "testing"

// fakeCPUID returns canned leaf-0xA/leaf-1 values for a CPU that looks
// like the teacher's target hardware: PDCM set, perfmon v2, 2 counters,
// 40-bit width, 3-bit event-select width, fixed cycle counter present.
func fakeCPUIDUsable(leaf, subleaf uint32) (uint32, uint32, uint32, uint32) {
	switch leaf {
	case 0xa:
		ax := uint32(2) | (2 << 8) | (40 << 16) | (3 << 24)
		bx := uint32(0)
		return ax, bx, 0, 0
	case 0x1:
		return 0, 0, 1 << 15, 0
	}
	return 0, 0, 0, 0
}

func fakeCPUIDXeon5000(leaf, subleaf uint32) (uint32, uint32, uint32, uint32) {
	if leaf == 0x1 {
		// baseModel=0xe, baseFamily=6, extModel=1, extFamily=0 ->
		// dispmodel = 1<<4+0xe = 0x1e, dispfamily = 0+6 = 6.
		ax := uint32(0xe<<4) | uint32(6<<8) | uint32(1<<16)
		return ax, 0, 1 << 15, 0
	}
	return fakeCPUIDUsable(leaf, subleaf)
}

func TestDetectArchPMCUsable(t *testing.T) {
	s := detectArchPMC(fakeCPUIDUsable)
	if !s.usable() {
		t.Fatalf("expected usable architectural PMC support, got %+v", s)
	}
}

func TestDetectArchPMCUnusableWhenNoCPUID(t *testing.T) {
	s := detectArchPMC(NoCPUID)
	if s.usable() {
		t.Fatalf("expected unusable support from NoCPUID, got %+v", s)
	}
}

func TestCPUIDFamilyModelXeon5000(t *testing.T) {
	model, family := cpuidFamilyModel(fakeCPUIDXeon5000)
	if family != 0x6 || model != 0x1e {
		t.Fatalf("expected family 0x6 model 0x1e, got family=%x model=%x", family, model)
	}
}

func TestSelectPicksNilCountersWithoutCPUID(t *testing.T) {
	c := Select(NoCPUID, NewSimMSR())
	if _, ok := c.(NilCounters); !ok {
		t.Fatalf("expected NilCounters, got %T", c)
	}
}

func TestSelectPicksArchPMCWhenUsable(t *testing.T) {
	c := Select(fakeCPUIDUsable, NewSimMSR())
	if _, ok := c.(*ArchPMC); !ok {
		t.Fatalf("expected *ArchPMC, got %T", c)
	}
}
