package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, s, b string) { Version, GitSHA, BuildTime = v, s, b }(Version, GitSHA, BuildTime)
	Version, GitSHA, BuildTime = "v0.3.0", "abc1234", "2025-06-01T12:00:00Z"

	want := "cellgate v0.3.0 (abc1234, built 2025-06-01T12:00:00Z)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
