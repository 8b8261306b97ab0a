package runtime

// Hooks is the five-point policy contract the orchestrator invokes across
// its three process stages: AtStart in the caller, Unshare and SetIDMap
// around the parent/stage1 handshake, SetupPriv and Setup in the
// grandchild once capabilities are active.
type Hooks interface {
	// AtStart runs once in the original caller, before anything is forked.
	AtStart() error
	// Unshare runs in stage1 immediately after it starts; it is
	// responsible for calling unshare(2) with whatever namespace flags
	// the policy requires. Independently of those flags, RunStage1 always
	// starts stage2 with CLONE_NEWPID, so stage2 is PID 1 of a new PID
	// namespace.
	Unshare() error
	// SetIDMap runs in the original caller once stage1 has signaled it
	// unshared, and applies the policy's ID-map plan to the stage1 pid.
	SetIDMap(pid int) error
	// SetupPriv runs in stage2 (the grandchild, PID 1 of the new PID
	// namespace) after capabilities are activated but before they are
	// cleared; this is where the privileged mount-tree plan executes.
	SetupPriv() error
	// Setup runs last in stage2, with all capability masks cleared; it
	// is expected to end by exec'ing the final command.
	Setup() error
}

// BaseHooks supplies no-op defaults for all five points; policies embed it
// and override only what they need.
type BaseHooks struct{}

func (BaseHooks) AtStart() error     { return nil }
func (BaseHooks) Unshare() error     { return nil }
func (BaseHooks) SetIDMap(int) error { return nil }
func (BaseHooks) SetupPriv() error   { return nil }
func (BaseHooks) Setup() error       { return nil }
