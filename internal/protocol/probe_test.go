package protocol

import "testing"

// TestDispatchPriorityOrder verifies that the first matching probe consumes
// the message and later probes are never consulted.
func TestDispatchPriorityOrder(t *testing.T) {
	var tried []string
	probe := func(name string, match bool) Probe {
		return Probe{Name: name, Try: func(from, text string) bool {
			tried = append(tried, name)
			return match
		}}
	}

	table := NewTable(probe("a", false), probe("b", true), probe("c", true))

	name, ok := table.Dispatch("dev-1", "payload")
	if !ok {
		t.Fatal("Dispatch reported no match")
	}
	if name != "b" {
		t.Errorf("consuming probe = %q, want %q", name, "b")
	}
	if len(tried) != 2 || tried[0] != "a" || tried[1] != "b" {
		t.Errorf("probe order = %v, want [a b]", tried)
	}
}

func TestDispatchNoMatch(t *testing.T) {
	table := NewTable(
		Probe{Name: "a", Try: func(string, string) bool { return false }},
	)

	if name, ok := table.Dispatch("dev-1", "payload"); ok {
		t.Errorf("Dispatch matched %q, want no match", name)
	}
}

func TestDispatchPassesSender(t *testing.T) {
	var gotFrom, gotText string
	table := NewTable(Probe{Name: "a", Try: func(from, text string) bool {
		gotFrom, gotText = from, text
		return true
	}})

	table.Dispatch("dev-7", "hello")
	if gotFrom != "dev-7" || gotText != "hello" {
		t.Errorf("probe saw (%q, %q), want (dev-7, hello)", gotFrom, gotText)
	}
}

func TestEmptyTableDropsEverything(t *testing.T) {
	table := NewTable()
	if _, ok := table.Dispatch("dev-1", "anything"); ok {
		t.Error("empty table matched a message")
	}
}
