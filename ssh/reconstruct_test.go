package ssh

import (
	"strings"
	"testing"

	"mvdan.cc/sh/v3/syntax"

	"github.com/jonchun/gitguard/gitcmd"
)

func TestRemoteCommandSimple(t *testing.T) {
	got := RemoteCommand(gitcmd.Invocation{Args: []string{"status", "--porcelain=v2"}, Dir: "/srv/repo"})
	if !strings.HasPrefix(got, "cd /srv/repo && env LC_ALL=C LANG=C") {
		t.Fatalf("RemoteCommand() = %q", got)
	}
	if !strings.HasSuffix(got, " git status --porcelain=v2") {
		t.Fatalf("RemoteCommand() = %q", got)
	}
}

func TestRemoteCommandWithoutDir(t *testing.T) {
	got := RemoteCommand(gitcmd.Invocation{Binary: "/opt/git/bin/git", Args: []string{"log"}})
	if strings.HasPrefix(got, "cd ") {
		t.Fatalf("RemoteCommand() = %q, want no cd", got)
	}
	if !strings.HasSuffix(got, " /opt/git/bin/git log") {
		t.Fatalf("RemoteCommand() = %q", got)
	}
}

// Every argument must come back as exactly one word when the remote shell
// parses the command line.
func TestRemoteCommandQuotesMetacharacters(t *testing.T) {
	args := []string{"log", "--grep=$(whoami)", "--author=it's me", "--", "a b;c", "`id`", "x|y", ""}
	inv := gitcmd.Invocation{Args: args, Dir: "/tmp/my repo"}
	line := RemoteCommand(inv)

	f, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	if len(f.Stmts) != 1 {
		t.Fatalf("statements = %d, want 1", len(f.Stmts))
	}
	bin, ok := f.Stmts[0].Cmd.(*syntax.BinaryCmd)
	if !ok || bin.Op != syntax.AndStmt {
		t.Fatalf("want cd && env ..., got %T", f.Stmts[0].Cmd)
	}
	call, ok := bin.Y.Cmd.(*syntax.CallExpr)
	if !ok {
		t.Fatalf("right-hand side is %T, want call", bin.Y.Cmd)
	}

	// env, locale pairs, binary, args
	if got, want := len(call.Args), 1+len(gitcmd.LocaleEnv)+1+len(args); got != want {
		t.Fatalf("words = %d, want %d (line %q)", got, want, line)
	}
	for _, w := range call.Args {
		for _, part := range w.Parts {
			if !literalPart(part) {
				t.Fatalf("word in %q contains expandable part %T", line, part)
			}
		}
	}
}

func literalPart(part syntax.WordPart) bool {
	switch p := part.(type) {
	case *syntax.Lit, *syntax.SglQuoted:
		return true
	case *syntax.DblQuoted:
		for _, inner := range p.Parts {
			if _, ok := inner.(*syntax.Lit); !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func FuzzRemoteCommandSingleStatement(f *testing.F) {
	for _, seed := range []string{"main", "; rm -rf /", "$(id)", "it's", "a\nb", "*", "&& true"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, arg string) {
		line := RemoteCommand(gitcmd.Invocation{Args: []string{"log", arg}, Dir: "/repo"})
		file, err := syntax.NewParser().Parse(strings.NewReader(line), "")
		if err != nil {
			return
		}
		if len(file.Stmts) != 1 {
			t.Fatalf("argument %q produced %d statements", arg, len(file.Stmts))
		}
	})
}
