package perf

// Event identifies a performance-monitoring event (teacher's
// pmevid_t). Values are a bitmask, same as teacher's, so a caller can
// still build a set with bitwise-or for code ported straight across,
// though StartPMC takes a slice of Counter rather than a mask.
type Event uint

const (
	EventUnhaltedCoreCycles Event = 1 << iota
	EventLLCMisses
	EventLLCRefs
	EventBranchInstrRetired
	EventBranchMissRetired
	EventInstrRetired
	// non-architectural, Xeon 5000-family only
	EventDTLBLoadMissAny
	EventDTLBLoadMissSTLB
	EventStoreDTLBMiss
	EventL2LDHits
	EventITLBLoadMissAny
)

var eventNames = map[Event]string{
	EventUnhaltedCoreCycles: "Unhalted core cycles",
	EventLLCMisses:          "LLC misses",
	EventLLCRefs:            "LLC references",
	EventBranchInstrRetired: "Branch instructions retired",
	EventBranchMissRetired:  "Branch misses retired",
	EventInstrRetired:       "Instructions retired",
	EventDTLBLoadMissAny:    "dTLB load misses",
	EventDTLBLoadMissSTLB:   "sTLB misses",
	EventStoreDTLBMiss:      "Store dTLB misses",
	EventL2LDHits:           "L2 load hits",
	EventITLBLoadMissAny:    "iTLB load misses",
}

func (e Event) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return "unknown event"
}

// Flag is a counting mode (teacher's pmflag_t): restrict counting to
// ring 0, ring 3, or (zero value) both.
type Flag uint

const (
	FlagOS Flag = 1 << iota
	FlagUSR
)

// Counter requests one performance counter for Event under Flags
// (teacher's pmev_t).
type Counter struct {
	Event Event
	Flags Flag
}
