package proc

// BlockReason tags why a task left the ready queue (spec §4.5's
// block/wake primitive, "a task in state Blocked appears on exactly
// one wait queue"). Defined here rather than in internal/sched: proc
// is the one package every blocking subsystem (ipc's channels, this
// package's own Wait4) already imports, so the tag lives where every
// blocker can name it without importing sched back (sched already
// imports proc for Id/Task, so the reverse import would cycle).
type BlockReason int

const (
	BlockNone BlockReason = iota
	BlockChannel
	BlockShm
	BlockWait4
	BlockTimer
)

// Blocker is satisfied by *sched.Scheduler. Anything that suspends a
// task — an IPC channel with no message or room, Wait4 waiting on a
// child — calls Block then Schedule to pull that task off the ready
// queue and switch to whatever runs next, the same voluntary
// switch-point spec §5 names. kpio's tasks are raw stacks switched by
// hand-written assembly (internal/sched/contextswitch_amd64.s), not
// goroutines, so there is exactly one OS thread driving every task in
// the real kernel binary: parking that thread on a Go channel or
// sync.Cond with no other goroutine around to close it would wedge
// the whole machine. Schedule's contextSwitch call is exactly the
// assembly internal/sched's own tests refuse to exercise under `go
// test` (see sched_test.go's header comment), which is why a Blocker
// here is optional — nil under tests, wired to a real *sched.Scheduler
// only by the freestanding kernel's boot path.
type Blocker interface {
	Block(id Id, reason BlockReason)
	Wake(id Id)
	Schedule()
}
