// Package cmdline reads key=value boot parameters.
package cmdline

import (
	"os"
	"regexp"

	"github.com/pkg/errors"
)

var (
	ErrCmdline = errors.New("kernel cmdline error")
)

// Value returns the value of the first key=value token for key in the cmdline string.
func Value(cmdline, key string) (string, bool) {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(key) + `=(\S+)`)

	match := re.FindStringSubmatch(cmdline)
	if match == nil {
		return "", false
	}

	return match[1], true
}

// Cmdline holds the contents of a boot parameter string.
type Cmdline string

// Read loads the boot parameters from the given file, usually /proc/cmdline.
func Read(path string) (Cmdline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(ErrCmdline, err.Error())
	}

	return Cmdline(b), nil
}

// Value returns the value for key.
func (c Cmdline) Value(key string) (string, bool) {
	return Value(string(c), key)
}

// Require returns the value for key, or an error when the key is missing.
func (c Cmdline) Require(key string) (string, error) {
	v, ok := c.Value(key)
	if !ok {
		return "", errors.Wrap(ErrCmdline, "missing parameter: "+key)
	}

	return v, nil
}
