// Package validator checks git argument vectors against the manifest
// registry and checks the individual fields of structured operations.
package validator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/jonchun/gitguard/manifest"
)

var numericCount = regexp.MustCompile(`^-\d+$`)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateArgs checks args (without the leading "git") against registry and
// returns the manifest entry that governs the command.
func ValidateArgs(args []string, registry map[string]*manifest.Manifest) (*manifest.Manifest, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Message: "No git sub-command given."}
	}
	command := args[0]
	if strings.HasPrefix(command, "-") {
		return nil, &ValidationError{Message: fmt.Sprintf("Global git option '%s' is not accepted. Start with the sub-command and use the cwd parameter instead of -C.", command)}
	}
	rest := args[1:]

	if manifest.SubcommandCommands[command] && len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		return validateSubcommand(command, rest, registry)
	}

	m := registry[command]
	if m == nil {
		return nil, &ValidationError{Message: fmt.Sprintf("Command 'git %s' is not available.", command)}
	}
	if m.Deny {
		return nil, &ValidationError{Message: fmt.Sprintf("Command 'git %s' is not available: %s", command, m.Reason)}
	}
	if err := validateArgs("git "+command, rest, m); err != nil {
		return nil, err
	}
	return m, nil
}

func validateSubcommand(command string, args []string, registry map[string]*manifest.Manifest) (*manifest.Manifest, error) {
	sub := args[0]
	m := registry[command+"_"+sub]
	if m == nil {
		return nil, &ValidationError{Message: fmt.Sprintf("git %s sub-command '%s' is not available.", command, sub)}
	}
	if m.Deny {
		return nil, &ValidationError{Message: fmt.Sprintf("git %s sub-command '%s' is not available: %s", command, sub, m.Reason)}
	}
	if err := validateArgs("git "+command+" "+sub, args[1:], m); err != nil {
		return nil, err
	}
	return m, nil
}

func validateArgs(command string, args []string, m *manifest.Manifest) error {
	positional := 0
	pathspec := false
	for idx := 0; idx < len(args); idx++ {
		arg := args[idx]
		switch {
		case pathspec:
			positional++
		case arg == "--":
			if !m.AllowsPathArgs {
				return &ValidationError{Message: fmt.Sprintf("'%s' does not accept paths.", command)}
			}
			pathspec = true
			continue
		case strings.HasPrefix(arg, "-") && arg != "-":
			if isNumericCountShorthand(arg, m) {
				continue
			}
			consumesNext, err := checkFlag(command, arg, m)
			if err != nil {
				return err
			}
			if consumesNext {
				idx++
				if idx >= len(args) {
					name, _, _ := splitLongFlag(arg)
					return &ValidationError{Message: fmt.Sprintf("Flag '%s' requires a value.", name)}
				}
				if err := validateFlagValue(command, valueFlag(arg, m), args[idx]); err != nil {
					return err
				}
			}
			continue
		default:
			positional++
		}
		if !m.AllowsPathArgs {
			return &ValidationError{Message: fmt.Sprintf("'%s' does not accept positional arguments; got '%s'.", command, arg)}
		}
	}

	if m.MaxPositional != nil && positional > *m.MaxPositional {
		return &ValidationError{Message: fmt.Sprintf("'%s' accepts at most %d positional argument(s), got %d.", command, *m.MaxPositional, positional)}
	}
	return nil
}

// checkFlag validates one option word and reports whether the following word
// is its value.
func checkFlag(command, arg string, m *manifest.Manifest) (bool, error) {
	name, inline, hasInline := splitLongFlag(arg)

	if f := m.GetFlag(name); f != nil {
		if f.Deny {
			return false, &ValidationError{Message: fmt.Sprintf("Flag '%s' is not available for '%s': %s", name, command, f.Reason) + allowedFlagHint(m)}
		}
		if !f.TakesValue {
			return false, nil
		}
		if hasInline {
			return false, validateFlagValue(command, f, inline)
		}
		return true, nil
	}

	if strings.HasPrefix(name, "--") {
		if isAllowedNegation(name, m) && !hasInline {
			return false, nil
		}
		return false, &ValidationError{Message: fmt.Sprintf("Flag '%s' is not recognized for '%s'.", name, command) + allowedFlagHint(m)}
	}

	if len(name) > 2 {
		for i := 1; i < len(name); i++ {
			subFlag := "-" + string(name[i])
			sub := m.GetFlag(subFlag)
			if sub == nil {
				return false, &ValidationError{Message: fmt.Sprintf("Flag '%s' (from '%s') is not recognized for '%s'.", subFlag, name, command) + allowedFlagHint(m)}
			}
			if sub.Deny {
				return false, &ValidationError{Message: fmt.Sprintf("Flag '%s' (from '%s') is not available for '%s': %s", subFlag, name, command, sub.Reason) + allowedFlagHint(m)}
			}
			if sub.TakesValue {
				inlineVal := name[i+1:]
				if inlineVal == "" {
					return true, nil
				}
				return false, validateFlagValue(command, sub, inlineVal)
			}
		}
		return false, nil
	}

	return false, &ValidationError{Message: fmt.Sprintf("Flag '%s' is not recognized for '%s'.", name, command) + allowedFlagHint(m)}
}

// valueFlag returns the flag whose value follows arg. For a combined short
// word such as "-in" that is the last letter.
func valueFlag(arg string, m *manifest.Manifest) *manifest.Flag {
	if f := m.GetFlag(arg); f != nil {
		return f
	}
	for i := 1; i < len(arg); i++ {
		if f := m.GetFlag("-" + string(arg[i])); f != nil && f.TakesValue {
			return f
		}
	}
	return &manifest.Flag{Flag: arg, TakesValue: true}
}

// isAllowedNegation reports whether --no-<x> negates an allowed flag that
// takes no value.
func isAllowedNegation(name string, m *manifest.Manifest) bool {
	if !m.Negatable {
		return false
	}
	base, ok := strings.CutPrefix(name, "--no-")
	if !ok || base == "" {
		return false
	}
	f := m.GetFlag("--" + base)
	return f != nil && !f.Deny && !f.TakesValue
}

func splitLongFlag(arg string) (string, string, bool) {
	if strings.HasPrefix(arg, "--") {
		if eq := strings.Index(arg, "="); eq > 0 {
			return arg[:eq], arg[eq+1:], true
		}
	}
	return arg, "", false
}

func allowedFlagNames(m *manifest.Manifest) []string {
	names := make([]string, 0, len(m.Flags))
	for _, f := range m.Flags {
		if !f.Deny {
			names = append(names, f.Flag)
		}
	}
	return names
}

func allowedFlagHint(m *manifest.Manifest) string {
	names := allowedFlagNames(m)
	if len(names) == 0 {
		return ""
	}
	return " Allowed flags: " + strings.Join(names, ", ")
}

func validateFlagValue(command string, flag *manifest.Flag, value string) error {
	if len(flag.AllowedValues) > 0 && !slices.Contains(flag.AllowedValues, value) {
		return &ValidationError{Message: fmt.Sprintf("Value '%s' is not valid for flag '%s' of '%s'. Allowed values: %s", value, flag.Flag, command, strings.Join(flag.AllowedValues, ", "))}
	}
	if strings.ContainsRune(value, 0) {
		return &ValidationError{Message: fmt.Sprintf("Value for flag '%s' contains a NUL byte.", flag.Flag)}
	}
	return nil
}

func isNumericCountShorthand(arg string, m *manifest.Manifest) bool {
	if !numericCount.MatchString(arg) {
		return false
	}
	nFlag := m.GetFlag("-n")
	return nFlag != nil && nFlag.TakesValue && !nFlag.Deny
}

// CheckRevision rejects a revision that git would read as an option.
func CheckRevision(field, rev string) error {
	if strings.HasPrefix(rev, "-") {
		return &ValidationError{Message: fmt.Sprintf("%s '%s' looks like an option; revisions must not start with '-'.", field, rev)}
	}
	if strings.ContainsAny(rev, "\x00\n\r") {
		return &ValidationError{Message: fmt.Sprintf("%s contains a control character.", field)}
	}
	return nil
}

// CheckPath rejects empty paths and paths that look like options.
func CheckPath(field, p string) error {
	if p == "" {
		return &ValidationError{Message: fmt.Sprintf("%s must not be empty.", field)}
	}
	if strings.HasPrefix(p, "-") {
		return &ValidationError{Message: fmt.Sprintf("%s '%s' looks like an option; prefix it with './'.", field, p)}
	}
	if strings.ContainsAny(p, "\x00\n\r") {
		return &ValidationError{Message: fmt.Sprintf("%s contains a control character.", field)}
	}
	return nil
}

// CheckPaths applies CheckPath to every element.
func CheckPaths(field string, paths []string) error {
	for _, p := range paths {
		if err := CheckPath(field, p); err != nil {
			return err
		}
	}
	return nil
}

// CheckCount rejects negative counts and, when limit is positive, counts
// above it.
func CheckCount(field string, n, limit int) error {
	if n < 0 {
		return &ValidationError{Message: fmt.Sprintf("%s must not be negative, got %d.", field, n)}
	}
	if limit > 0 && n > limit {
		return &ValidationError{Message: fmt.Sprintf("%s must be at most %d, got %d.", field, limit, n)}
	}
	return nil
}

// CheckLineRange validates a blame line range where zero means unset.
func CheckLineRange(start, end int) error {
	if start < 0 || end < 0 {
		return &ValidationError{Message: "start_line and end_line must not be negative."}
	}
	if end > 0 && start == 0 {
		return &ValidationError{Message: "end_line requires start_line."}
	}
	if end > 0 && end < start {
		return &ValidationError{Message: fmt.Sprintf("end_line (%d) must not be before start_line (%d).", end, start)}
	}
	return nil
}
