package version

import (
	"fmt"
	"os"

	"github.com/alvarorichard/gocatalog/internal/storage"
)

const (
	Version = "0.3"
)

func HasVersionArg() bool {
	if len(os.Args) > 1 {
		arg := os.Args[1]
		return arg == "--version" || arg == "-version" || arg == "-v" || arg == "--v" || arg == "version"
	}
	return false
}

// String describes the build, including whether SQLite support was compiled in
func String(binary string) string {
	s := fmt.Sprintf("%s v%s", binary, Version)
	if storage.Available() {
		return s + " (with SQLite storage)"
	}
	return s + " (without SQLite storage)"
}

func ShowVersion(binary string) {
	fmt.Println(String(binary))
}
