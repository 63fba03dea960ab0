package interp

// registerFile is a per-round, single-assignment-by-convention mapping
// from identifier to text value. Mutations are tracked via a write-log
// journal rather than deep copies, so a failed ensure can roll back
// cheaply.
type registerFile struct {
	values map[string]string
}

// writeLogEntry records what a single assignment overwrote, so it can
// be undone without knowing the rest of the register file's state.
type writeLogEntry struct {
	name      string
	hadValue  bool
	prevValue string
}

func newRegisterFile(preload map[string]string) *registerFile {
	values := make(map[string]string, len(preload))
	for k, v := range preload {
		values[k] = v
	}
	return &registerFile{values: values}
}

func (r *registerFile) get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

// set assigns name=value and returns the writeLogEntry needed to undo
// it, for the caller to push onto the active journal frame.
func (r *registerFile) set(name, value string) writeLogEntry {
	prev, had := r.values[name]
	r.values[name] = value
	return writeLogEntry{name: name, hadValue: had, prevValue: prev}
}

// undo reverts a single assignment using its writeLogEntry.
func (r *registerFile) undo(e writeLogEntry) {
	if e.hadValue {
		r.values[e.name] = e.prevValue
	} else {
		delete(r.values, e.name)
	}
}

// snapshot returns a shallow copy suitable for embedding in an
// elicit_request event; presentation functions must not be able to
// mutate the live register file through it.
func (r *registerFile) snapshot() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// journal is a stack of write-log frames, one pushed per beacon().
// Undoing the top frame (in reverse order, since a later entry may
// have overwritten an earlier one's target) rolls the register file
// back to exactly its state at that beacon.
type journal struct {
	frames [][]writeLogEntry
}

func (j *journal) pushFrame() {
	j.frames = append(j.frames, nil)
}

func (j *journal) record(e writeLogEntry) {
	if len(j.frames) == 0 {
		return
	}
	top := len(j.frames) - 1
	j.frames[top] = append(j.frames[top], e)
}

// rollbackTo pops and undoes frames until exactly depth frames remain,
// applying entries within each popped frame in reverse order.
func (j *journal) rollbackTo(rf *registerFile, depth int) {
	for len(j.frames) > depth {
		top := len(j.frames) - 1
		entries := j.frames[top]
		for i := len(entries) - 1; i >= 0; i-- {
			rf.undo(entries[i])
		}
		j.frames = j.frames[:top]
	}
}

func (j *journal) depth() int {
	return len(j.frames)
}
