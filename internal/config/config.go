// Package config lets every command-line flag be set from the environment.
//
// A flag named "max-new-tokens" is read from TINYCHAT_MAX_NEW_TOKENS. Values
// given explicitly on the command line take precedence over the environment.
package config

import (
	"flag"
	"os"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EnvPrefix is prepended to the upper-cased flag name.
const EnvPrefix = "TINYCHAT_"

// EnvName returns the environment variable that backs the flag name.
func EnvName(name string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Parse applies environment overrides to fs and then parses args. Flags that
// appear in args win over the environment.
func Parse(fs *flag.FlagSet, args []string) error {
	if err := ApplyEnv(fs); err != nil {
		return err
	}
	return fs.Parse(args)
}

// ApplyEnv sets every flag of fs that has a matching environment variable.
// klog's own flags are skipped: they are not part of the application's settings.
func ApplyEnv(fs *flag.FlagSet) error {
	var firstErr error
	fs.VisitAll(func(f *flag.Flag) {
		if firstErr != nil || isKlogFlag(f.Name) {
			return
		}
		key := EnvName(f.Name)
		value, found := os.LookupEnv(key)
		if !found {
			return
		}
		if err := fs.Set(f.Name, value); err != nil {
			firstErr = errors.Wrapf(err, "invalid value %q for %s", value, key)
			return
		}
		klog.V(1).Infof("flag --%s set from %s", f.Name, key)
	})
	return firstErr
}

var klogFlags = map[string]bool{}

func init() {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	fs.VisitAll(func(f *flag.Flag) { klogFlags[f.Name] = true })
}

func isKlogFlag(name string) bool { return klogFlags[name] }
