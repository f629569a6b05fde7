package core

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/zhouchenh/trustDNS/internal/common"
)

var (
	name    = "trustDNS"
	version = "0.9.0"
	build   = ""
	intro   = "RFC 5011 automated DNSSEC trust anchor maintenance."
)

func Name() string {
	return name
}

func Version() string {
	return version
}

func VersionStatement() []string {
	return []string{
		common.Concatenate(Name(), " ", Version(), " ", build, "(", runtime.GOOS, "/", runtime.GOARCH, ")"),
		intro,
	}
}

func EnvKey(key ...interface{}) string {
	var args []interface{}
	args = append(args, Name())
	args = append(args, key...)
	return common.UpperString(common.SnakeCaseConcatenate(args...))
}

func OpenFile(path string) (*os.File, error) {
	if file, err := os.Open(path); err == nil {
		return file, err
	} else {
		if env := os.Getenv(EnvKey("config", "dir", "path")); env != "" {
			if file, err := os.Open(filepath.Join(env, path)); err == nil {
				return file, err
			}
		}
		return nil, err
	}
}

// ResolvePath expands a relative path against the config directory, the way
// OpenFile resolves config-relative files, without opening it.
func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if env := os.Getenv(EnvKey("config", "dir", "path")); env != "" {
		return filepath.Join(env, path)
	}
	return path
}
