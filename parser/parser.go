// Package parser turns a git argument string into an argument vector. Shell
// constructs that would run or expand anything are rejected.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Input size limits.
const (
	MaxCommandLength = 65536
	MaxArgs          = 1024
)

var braceExpansion = regexp.MustCompile(`\{[^{}]*(,|\.\.)[^{}]*\}`)

type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

// ParseArgs splits input the way a POSIX shell would and returns the words.
// A leading "git" word is dropped so both "log -n 5" and "git log -n 5" are
// accepted. Quotes are removed; the words are never expanded.
func ParseArgs(input string) ([]string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, &ParseError{Message: "Empty command."}
	}
	if len(trimmed) > MaxCommandLength {
		return nil, &ParseError{Message: fmt.Sprintf("Command too long (%d bytes, max %d).", len(trimmed), MaxCommandLength)}
	}

	p := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := p.Parse(strings.NewReader(trimmed), "")
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("parse error: %v", err)}
	}
	if len(file.Stmts) == 0 {
		return nil, &ParseError{Message: "No command found in input."}
	}
	if len(file.Stmts) > 1 {
		return nil, &ParseError{Message: "Only one git command can run per call; semicolons and newlines are not allowed."}
	}

	args, err := walkStmt(file.Stmts[0])
	if err != nil {
		return nil, err
	}
	if len(args) > 0 && args[0] == "git" {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, &ParseError{Message: "No git sub-command given."}
	}
	return args, nil
}

func walkStmt(stmt *syntax.Stmt) ([]string, error) {
	if stmt.Background {
		return nil, &ParseError{Message: "Background execution is not allowed."}
	}
	if stmt.Negated {
		return nil, &ParseError{Message: "Negation is not allowed."}
	}
	if len(stmt.Redirs) > 0 {
		return nil, &ParseError{Message: "Redirections are not supported. stderr is captured separately."}
	}
	if stmt.Cmd == nil {
		return nil, &ParseError{Message: "Unsupported shell construct."}
	}

	switch c := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		if len(c.Assigns) > 0 {
			return nil, &ParseError{Message: "Variable assignments are not allowed."}
		}
		if len(c.Args) == 0 {
			return nil, &ParseError{Message: "Empty command."}
		}
		if len(c.Args) > MaxArgs {
			return nil, &ParseError{Message: fmt.Sprintf("Too many arguments (%d, max %d).", len(c.Args), MaxArgs)}
		}
		words := make([]string, 0, len(c.Args))
		for _, arg := range c.Args {
			word, err := literalWord(arg)
			if err != nil {
				return nil, err
			}
			words = append(words, word)
		}
		return words, nil

	case *syntax.BinaryCmd:
		return nil, &ParseError{Message: fmt.Sprintf("Operator %s is not allowed; run one git command per call.", c.Op)}
	case *syntax.Subshell:
		return nil, &ParseError{Message: "Subshells are not allowed."}
	case *syntax.Block:
		return nil, &ParseError{Message: "Block expressions are not allowed."}
	case *syntax.IfClause:
		return nil, &ParseError{Message: "Control flow (if) is not allowed."}
	case *syntax.WhileClause:
		return nil, &ParseError{Message: "Control flow (while) is not allowed."}
	case *syntax.ForClause:
		return nil, &ParseError{Message: "Control flow (for/select/until) is not allowed."}
	case *syntax.CaseClause:
		return nil, &ParseError{Message: "Control flow (case) is not allowed."}
	case *syntax.ArithmCmd:
		return nil, &ParseError{Message: "Arithmetic commands are not allowed."}
	case *syntax.TestClause:
		return nil, &ParseError{Message: "Test clauses are not allowed."}
	case *syntax.DeclClause:
		return nil, &ParseError{Message: "Variable assignments are not allowed."}
	case *syntax.LetClause:
		return nil, &ParseError{Message: "Let clauses are not allowed."}
	case *syntax.FuncDecl:
		return nil, &ParseError{Message: "Function definitions are not allowed."}
	case *syntax.CoprocClause:
		return nil, &ParseError{Message: "Coprocesses are not allowed."}
	case *syntax.TimeClause:
		return nil, &ParseError{Message: "Time clauses are not allowed."}
	default:
		return nil, &ParseError{Message: fmt.Sprintf("Unsupported shell construct: %T", c)}
	}
}

// literalWord resolves quoting in w. Anything that a shell would expand is
// an error.
func literalWord(w *syntax.Word) (string, error) {
	var b strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			if braceExpansion.MatchString(p.Value) {
				return "", &ParseError{Message: "Brace expansion is not allowed."}
			}
			b.WriteString(unescape(p.Value, ""))
		case *syntax.SglQuoted:
			if p.Dollar {
				return "", &ParseError{Message: "ANSI-C quoting ($'...') is not supported."}
			}
			b.WriteString(p.Value)
		case *syntax.DblQuoted:
			if p.Dollar {
				return "", &ParseError{Message: "Locale quoting ($\"...\") is not supported."}
			}
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", expansionError(inner)
				}
				b.WriteString(unescape(lit.Value, "$`\"\\\n"))
			}
		default:
			return "", expansionError(part)
		}
	}
	return b.String(), nil
}

func expansionError(part syntax.WordPart) error {
	switch part.(type) {
	case *syntax.ParamExp:
		return &ParseError{Message: "Variable expansion will not expand. Write the value literally."}
	case *syntax.CmdSubst:
		return &ParseError{Message: "Command substitution is not allowed."}
	case *syntax.ProcSubst:
		return &ParseError{Message: "Process substitution is not allowed."}
	case *syntax.ArithmExp:
		return &ParseError{Message: "Arithmetic expansion is not allowed."}
	case *syntax.ExtGlob:
		return &ParseError{Message: "Extended glob patterns are not allowed."}
	case *syntax.BraceExp:
		return &ParseError{Message: "Brace expansion is not allowed."}
	default:
		return &ParseError{Message: fmt.Sprintf("Unsupported word part: %T", part)}
	}
}

// unescape removes shell backslash escapes. With an empty only set every
// escaped character is taken literally (unquoted context); otherwise only the
// characters in only are escapable (double-quoted context).
func unescape(s, only string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		next := s[i+1]
		if only != "" && !strings.ContainsRune(only, rune(next)) {
			b.WriteByte('\\')
			continue
		}
		i++
		if next != '\n' {
			b.WriteByte(next)
		}
	}
	return b.String()
}
