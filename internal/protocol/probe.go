package protocol

// Probe pairs a schema name with a speculative decode attempt. Try reports
// whether the text matched the schema and was consumed; it receives the
// routing key of the sending device so handlers can attribute the message.
type Probe struct {
	Name string
	Try  func(from, text string) bool
}

// Table holds probes in fixed priority order. The first structural match
// consumes the message; text matching no probe is dropped by the caller.
// The table is plain data and carries no transport dependency.
type Table struct {
	probes []Probe
}

func NewTable(probes ...Probe) *Table {
	return &Table{probes: probes}
}

// Dispatch tries each probe in order and returns the name of the consuming
// probe, or ok=false when no schema matched.
func (t *Table) Dispatch(from, text string) (string, bool) {
	for _, p := range t.probes {
		if p.Try(from, text) {
			return p.Name, true
		}
	}
	return "", false
}
