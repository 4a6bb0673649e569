package ssh

import (
	"strings"

	"github.com/jonchun/gitguard/gitcmd"
	"github.com/jonchun/gitguard/output"
)

// RemoteCommand renders inv as a single shell command line for a remote
// session: change into inv.Dir, pin the locale, then run git with every
// argument quoted.
func RemoteCommand(inv gitcmd.Invocation) string {
	var parts []string
	if inv.Dir != "" {
		parts = append(parts, "cd", output.QuoteArg(inv.Dir), "&&")
	}

	parts = append(parts, "env")
	for _, kv := range append(append([]string(nil), gitcmd.LocaleEnv...), inv.Env...) {
		parts = append(parts, output.QuoteArg(kv))
	}
	for _, arg := range inv.Argv() {
		parts = append(parts, output.QuoteArg(arg))
	}
	return strings.Join(parts, " ")
}
