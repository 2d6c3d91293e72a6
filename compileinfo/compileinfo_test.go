package compileinfo

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	for _, v := range []struct {
		Info     CompileInfo
		Contains string
	}{
		{CompileInfo{}, "unavailable"},
		{CompileInfo{Package: "github.com/carbocation/tissuedge/cmd/tissuedge", Version: "(devel)", GoVersion: "go1.18", Commit: "abc123"}, "abc123"},
		{CompileInfo{Package: "p", Modified: true}, "uncommitted"},
	} {
		if s := v.Info.String(); !strings.Contains(s, v.Contains) {
			t.Fatalf("%+v: %q does not mention %q", v.Info, s, v.Contains)
		}
	}
}

func TestGet(t *testing.T) {
	// Test binaries carry build info with the Go version filled in.
	if info := Get(); info.Package != "" && info.GoVersion == "" {
		t.Fatalf("package %s reported without a Go version", info.Package)
	}
}
