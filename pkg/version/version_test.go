package version

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func setBuild(t *testing.T, tg, c, d string) {
	t.Helper()
	oldTag, oldCommit, oldDate := tag, commit, date
	tag, commit, date = tg, c, d
	t.Cleanup(func() { tag, commit, date = oldTag, oldCommit, oldDate })
}

func TestString(t *testing.T) {
	tests := []struct {
		name        string
		tag, commit string
		want        string
		wantFull    string
	}{
		{"dev", "", "unknown", "dev", "roomchat dev"},
		{"untagged", "", "abc1234", "abc1234", "roomchat abc1234 built 2026-01-01"},
		{"tagged", "v1.2.0", "abc1234", "v1.2.0", "roomchat v1.2.0 (abc1234) built 2026-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuild(t, tt.tag, tt.commit, "2026-01-01")
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := Full(); got != tt.wantFull {
				t.Errorf("Full() = %q, want %q", got, tt.wantFull)
			}
		})
	}
}

func TestLogAttrs(t *testing.T) {
	setBuild(t, "v1.0.0", "abc1234", "2026-01-01")
	want := []any{"version", "v1.0.0", "commit", "abc1234", "built", "2026-01-01"}
	if diff := cmp.Diff(want, LogAttrs()); diff != "" {
		t.Errorf("LogAttrs() mismatch (-want +got):\n%s", diff)
	}
}
