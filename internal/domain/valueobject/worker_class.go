package valueobject

// WorkerClass names a subset of job kinds accepted by a single worker
// thread. The claim protocol filters the runnable set through Accepts, so a
// task whose kind no class accepts is simply never dispatched.
type WorkerClass struct {
	Name  string
	Kinds []JobKind
}

func NewWorkerClass(name string, kinds ...JobKind) WorkerClass {
	return WorkerClass{Name: name, Kinds: kinds}
}

func (c WorkerClass) Accepts(kind JobKind) bool {
	for _, k := range c.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (c WorkerClass) String() string {
	return c.Name
}
