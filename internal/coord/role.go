package coord

// Role is the closed set of behaviors a worker process can take on.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleSynthesizer Role = "synthesizer"
	RoleWorker      Role = "worker"
)

// Capabilities describes what a role is allowed to do. The table is static;
// roles are not a mutable property bag.
type Capabilities struct {
	AssignTasks  bool // may push tasks to other workers
	ClaimTasks   bool // may pull work from the queue
	Converge     bool // may trigger and execute convergences
	WakeWorkers  bool // may send wake signals
	TrackBudgets bool // may mutate the account ledger
}

var roleCapabilities = map[Role]Capabilities{
	RoleCoordinator: {AssignTasks: true, Converge: true, WakeWorkers: true, TrackBudgets: true},
	RoleSynthesizer: {ClaimTasks: true, Converge: true},
	RoleWorker:      {ClaimTasks: true},
}

// CapabilitiesOf returns the capability table entry for a role. Unknown roles
// get the plain worker capability set.
func CapabilitiesOf(r Role) Capabilities {
	if caps, ok := roleCapabilities[r]; ok {
		return caps
	}
	return roleCapabilities[RoleWorker]
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}
