package session

import "os"

// WorkerEnv is set by the host runner on each worker process when the run is
// fanned out to multiple OS workers ("gw0", "gw1", ...). The controlling
// process, and a plain single-process run, have it unset.
const WorkerEnv = "TESTRUN_WORKER"

// WorkerIdentity is the cheap, side-effect-free predicate consulted before
// any mutating session setup: whether this process is a worker under
// distributed execution, and whether it is the one performing leader
// actions.
type WorkerIdentity interface {
	// Name is the worker identifier, empty for the controlling process.
	Name() string
	// Distributed reports whether the run is fanned out to worker processes.
	Distributed() bool
	// Leader reports whether this process performs one-time setup.
	Leader() bool
}

type workerIdentity struct {
	name string
}

func (w workerIdentity) Name() string {
	return w.name
}

func (w workerIdentity) Distributed() bool {
	return w.name != ""
}

// Leader is the process not running as a worker: the controller of a
// distributed run, or the only process of a plain run.
func (w workerIdentity) Leader() bool {
	return w.name == ""
}

// EnvWorkerIdentity reads the worker identity from the environment.
func EnvWorkerIdentity() WorkerIdentity {
	return workerIdentity{name: os.Getenv(WorkerEnv)}
}

// StaticWorkerIdentity returns a fixed identity, for explicit wiring and
// tests.
func StaticWorkerIdentity(name string) WorkerIdentity {
	return workerIdentity{name: name}
}
