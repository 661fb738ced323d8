package parser

import (
	"fmt"
	"testing"

	"github.com/pithecene-io/foundry/types"
)

// feed parses input either whole or one byte at a time and returns the
// event trace plus accumulated display output.
func feed(t *testing.T, input string, chunked bool) ([]string, string) {
	t.Helper()
	sink := &recordingSink{}
	p := New(sink, testLogger())
	if chunked {
		for i := 1; i <= len(input); i++ {
			p.Parse("turn", input[:i])
		}
	} else {
		p.Parse("turn", input)
	}
	return sink.events, p.Output("turn")
}

func TestChunkInvariance(t *testing.T) {
	inputs := map[string]string{
		"scenario A":     scenarioA,
		"prose only":     "hello world, `ticks` and <tags> but no directives",
		"prose around":   "intro text\n" + scenarioA + "\ntrailing text",
		"two artifacts":  scenarioA + " and " + `<artifact id="b2" title="Second"><action type="shell">ls</action></artifact>`,
		"fence hugging":  "```xml" + scenarioA + "```",
		"fence detached": "```\n\n" + scenarioA + "\n```",
		"fence lang":     "```jsx\n" + scenarioA + "\n```",
		"lookalike tag":  "<artifacts> is not a directive",
		"stray angle":    "a < b and <foundry is fine",
		"multi action": `<artifact id="m1" title="Multi">` +
			`<action type="file" filePath="index.html"><html>x</html></action>` +
			"\n  \n" +
			`<action type="shell">npm run dev</action>` +
			`</artifact>`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			wholeEvents, wholeOut := feed(t, input, false)
			chunkEvents, chunkOut := feed(t, input, true)

			if len(wholeEvents) != len(chunkEvents) {
				t.Fatalf("event counts differ: whole=%v chunked=%v", wholeEvents, chunkEvents)
			}
			for i := range wholeEvents {
				if wholeEvents[i] != chunkEvents[i] {
					t.Errorf("event[%d]: whole=%q chunked=%q", i, wholeEvents[i], chunkEvents[i])
				}
			}
			if wholeOut != chunkOut {
				t.Errorf("output differs:\nwhole:   %q\nchunked: %q", wholeOut, chunkOut)
			}
		})
	}
}

func TestChunkInvariance_FenceElidedFromOutput(t *testing.T) {
	input := "```xml\n" + scenarioA + "\n```"
	_, out := feed(t, input, true)
	for _, bad := range []string{"```", "<artifact", "</artifact>"} {
		if contains(out, bad) {
			t.Errorf("output %q contains %q", out, bad)
		}
	}
}

func TestChunkInvariance_ManyActions(t *testing.T) {
	input := `<artifact id="big" title="Big">`
	for i := 0; i < 10; i++ {
		input += fmt.Sprintf(`<action type="file" filePath="f%d.txt">content %d</action>`, i, i)
	}
	input += `</artifact>`

	wholeEvents, _ := feed(t, input, false)
	chunkEvents, _ := feed(t, input, true)

	if len(wholeEvents) != len(chunkEvents) || len(wholeEvents) != 22 {
		t.Fatalf("events: whole=%d chunked=%d, want 22", len(wholeEvents), len(chunkEvents))
	}
}

// contains avoids importing strings in a file that mostly compares slices.
func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestFenceHoldback(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"```", 0},
		{"``", 0},
		{"```jsx", 0},
		{"```jsx\n", 0},
		{"text```", 4},
		{"done", 4},
		{"````", 4}, // four backticks: not a pending 1-3 tick marker
	}
	for _, tt := range tests {
		if got := fenceHoldback(tt.in); got != tt.want {
			t.Errorf("fenceHoldback(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFenceToken(t *testing.T) {
	if n, ok := fenceToken("```xml<tag"); !ok || n != 6 {
		t.Errorf("fenceToken hugging = (%d,%v), want (6,true)", n, ok)
	}
	if n, ok := fenceToken("```\n\n<tag"); !ok || n != 5 {
		t.Errorf("fenceToken detached = (%d,%v), want (5,true)", n, ok)
	}
	if _, ok := fenceToken("``x"); ok {
		t.Error("two backticks should not form a fence token")
	}
}

// Guard: a partially streamed close tag must not leak into content.
func TestChunkInvariance_ContentWithAngleBrackets(t *testing.T) {
	input := `<artifact id="a1" title="T"><action type="file" filePath="x.html"><div>a < b</div></action></artifact>`
	wholeEvents, _ := feed(t, input, false)
	chunkEvents, _ := feed(t, input, true)

	if len(wholeEvents) != len(chunkEvents) {
		t.Fatalf("event counts differ: %v vs %v", wholeEvents, chunkEvents)
	}
	want := `action-close kind=file path=x.html content="<div>a < b</div>\n"`
	if wholeEvents[2] != want {
		t.Errorf("close event = %q, want %q", wholeEvents[2], want)
	}
	_ = types.ActionKindFile
}
