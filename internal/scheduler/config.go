// Package scheduler implements the per-executor work-stealing state
// machine: the dual task queues, DAG expansion, reservation, stealing,
// execution with result placement, and reference-counted chunk cleanup.
// Both executor and broker roles share this type.
package scheduler

// Role distinguishes an executor (runs thunks) from a broker (dispatches
// without executing).
type Role string

const (
	RoleExecutor Role = "executor"
	RoleBroker   Role = "broker"
)

// Config configures one Scheduler instance. CLI, environment and on-disk
// formats are out of scope here; a caller (cmd/executor) builds this
// struct from whatever configuration source it prefers.
type Config struct {
	Name string
	Role Role

	// ShareLimit bounds the shared deque's capacity.
	ShareLimit int
	// HelpThreshold is the target upper bound on shared length before
	// should_share reports false.
	HelpThreshold int

	// PeerNames lists the peer executors reachable from this one. A
	// restricted executor set is simply a shorter list.
	PeerNames []string

	Debug bool
}

// DefaultConfig returns a Config with reasonable defaults applied;
// callers still must set Name.
func DefaultConfig(name string, role Role) Config {
	return Config{
		Name:          name,
		Role:          role,
		ShareLimit:    1024,
		HelpThreshold: 256,
	}
}
