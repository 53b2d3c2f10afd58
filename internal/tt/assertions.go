package tt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rickchristie/toolloop"
)

// -----------------------------------------------------------------------------
// Transcript Helpers
// -----------------------------------------------------------------------------

// Transcript renders turns as one line per item, for comparing whole conversations:
//
//	user: What is 15 plus 25?
//	model -> call_1 calculate {"a":15,"b":25,"operation":"add"}
//	result <- call_1 calculate success 40
//	model: The answer is 40.
func Transcript(turns []toolloop.Turn) string {
	var sb strings.Builder
	for _, turn := range turns {
		switch turn.Role {
		case toolloop.RoleUser:
			fmt.Fprintf(&sb, "user: %s\n", turn.Text)
		case toolloop.RoleModel:
			if turn.Text != "" {
				fmt.Fprintf(&sb, "model: %s\n", turn.Text)
			}
			for _, call := range turn.ToolCalls {
				fmt.Fprintf(&sb, "model -> %s %s %s\n", call.ID, call.ToolName, compactJSON(call.Arguments))
			}
		case toolloop.RoleToolResult:
			for _, res := range turn.Results {
				if res.Failed() {
					fmt.Fprintf(&sb, "result <- %s %s failure %q\n", res.CallID, res.ToolName, res.Error)
				} else {
					fmt.Fprintf(&sb, "result <- %s %s success %s\n", res.CallID, res.ToolName, compactJSON(res.Value))
				}
			}
		}
	}
	return sb.String()
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// AssertTranscript compares the rendered transcript of turns with expected and reports a
// unified diff on mismatch. Leading and trailing whitespace of expected is ignored.
func AssertTranscript(t *testing.T, expected string, turns []toolloop.Turn) bool {
	t.Helper()

	want := strings.TrimSpace(expected) + "\n"
	got := Transcript(turns)
	if want == got {
		return true
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		diff = err.Error()
	}
	t.Errorf("transcript mismatch:\n%s", diff)
	return false
}
