package main

import "runtime/debug"

// version reports the module version embedded by the Go toolchain, or
// "dev" when run outside a built/released binary. Grounded on the
// teacher's cmd/hector/main.go VersionCmd.Run.
func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}
