package analysis

import (
	"strings"
	"testing"
	"time"
)

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`, true},
		{"prose", `Here you go: {"a":1} and {"b":2}`, `{"a":1}`, true},
		{"braces in strings", `{"note":"use } and { freely","n":1}`, `{"note":"use } and { freely","n":1}`, true},
		{"escaped quote", `{"q":"say \"}\" now"}`, `{"q":"say \"}\" now"}`, true},
		{"unbalanced then valid", `{ oops {"a":1}`, `{"a":1}`, true},
		{"quote in prose", `He said "here {"a":1}`, `{"a":1}`, true},
		{"earliest start wins", `{ x {"a":1} {"b":{"c":2}}`, `{"a":1}`, true},
		{"closing brace first", `} {"a":1}`, `{"a":1}`, true},
		{"none", `no json at all`, "", false},
		{"unterminated", `{"a":1`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ExtractJSONObject(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestExtractJSONObjectLongUnbalancedRun(t *testing.T) {
	const n = 1 << 20
	unbalanced := strings.Repeat("{", n)

	begin := time.Now()
	if got, ok := ExtractJSONObject(unbalanced); ok {
		t.Fatalf("expected no block, got %d bytes", len(got))
	}
	got, ok := ExtractJSONObject(unbalanced + `{"vehicleCount":3}`)
	if !ok || got != `{"vehicleCount":3}` {
		t.Fatalf("expected trailing object, got %q, %v", got, ok)
	}
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Fatalf("scanning %d unbalanced braces took %s", n, elapsed)
	}
}

func TestBuildPromptDefaultsLabel(t *testing.T) {
	if !strings.Contains(BuildPrompt(""), "Video filename: unknown") {
		t.Fatal("expected unknown label")
	}
	prompt := BuildPrompt("cam-04.mp4")
	if !strings.HasPrefix(prompt, "Analyze these traffic video frames") || !strings.Contains(prompt, "Video filename: cam-04.mp4") {
		t.Fatalf("unexpected prompt: %q", prompt)
	}
}
