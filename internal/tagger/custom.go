package tagger

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/cel-go/cel"
	"github.com/mattn/go-shellwords"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// Rule scopes.
const (
	ScopeMessage = "message"
	ScopeSession = "session"
)

// ErrInvalidRule is returned when a custom rule cannot be compiled.
var ErrInvalidRule = errors.New("invalid tag rule")

// Rule is a custom tag rule declared in config. Message rules see the
// variables role and content. Session rules see messages, a list of
// {"role", "content"} maps holding the session's tool_summary and plan
// messages, and commands, the program names run through Bash in the
// session. Expr must evaluate to a bool.
type Rule struct {
	Tag   string `json:"tag"`
	Scope string `json:"scope"`
	Expr  string `json:"expr"`
}

type compiledRule struct {
	tag string
	prg cel.Program
}

var (
	messageEnv = mustEnv(
		cel.Variable("role", cel.StringType),
		cel.Variable("content", cel.StringType),
	)
	sessionEnv = mustEnv(
		cel.Variable("messages", cel.ListType(cel.MapType(cel.StringType, cel.StringType))),
		cel.Variable("commands", cel.ListType(cel.StringType)),
	)
)

func mustEnv(opts ...cel.EnvOption) *cel.Env {
	env, err := cel.NewEnv(opts...)
	if err != nil {
		panic(fmt.Sprintf("tagger: cel env: %v", err))
	}
	return env
}

// compileRules type-checks every rule and splits them by scope.
func compileRules(rules []Rule) (msg, sess []compiledRule, err error) {
	for i, r := range rules {
		if r.Tag == "" {
			return nil, nil, fmt.Errorf("%w: rule %d has no tag", ErrInvalidRule, i)
		}
		if err := store.ValidateTags([]string{r.Tag}); err != nil {
			return nil, nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.Tag, err)
		}
		var env *cel.Env
		switch r.Scope {
		case "", ScopeMessage:
			env = messageEnv
		case ScopeSession:
			env = sessionEnv
		default:
			return nil, nil, fmt.Errorf("%w: rule %q: unknown scope %q", ErrInvalidRule, r.Tag, r.Scope)
		}

		ast, iss := env.Compile(r.Expr)
		if iss != nil && iss.Err() != nil {
			return nil, nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.Tag, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, nil, fmt.Errorf("%w: rule %q: expression yields %s, want bool", ErrInvalidRule, r.Tag, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.Tag, err)
		}

		c := compiledRule{tag: r.Tag, prg: prg}
		if env == sessionEnv {
			sess = append(sess, c)
		} else {
			msg = append(msg, c)
		}
	}
	return msg, sess, nil
}

// eval runs a compiled rule. Evaluation errors count as no match.
func (c compiledRule) eval(vars map[string]any) bool {
	out, _, err := c.prg.Eval(vars)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func messageVars(role store.Role, content string) map[string]any {
	return map[string]any{"role": string(role), "content": content}
}

func sessionVars(msgs []store.Message) map[string]any {
	list := make([]any, len(msgs))
	commands := []string{}
	seen := map[string]bool{}
	for i, m := range msgs {
		list[i] = map[string]string{"role": string(m.Role), "content": m.Content}
		if m.Role != store.RoleToolSummary {
			continue
		}
		for _, line := range strings.Split(m.Content, "\n") {
			cmd, ok := strings.CutPrefix(line, bashPrefix)
			if !ok {
				continue
			}
			for _, name := range CommandNames(cmd) {
				if !seen[name] {
					seen[name] = true
					commands = append(commands, name)
				}
			}
		}
	}
	return map[string]any{"messages": list, "commands": commands}
}

const bashPrefix = "[Bash] "

// CommandNames returns the program names of each command in a shell line,
// split on ;, & and |. Leading VAR=value assignments are skipped, as is the
// target of a redirect. A line that does not parse yields what was read so
// far. Parser positions count runes, so non-ASCII lines stop after the
// first command.
func CommandNames(line string) []string {
	var names []string
	redirect := false
	for strings.TrimSpace(line) != "" {
		p := shellwords.NewParser()
		args, err := p.Parse(line)
		if err != nil {
			break
		}
		if !redirect {
			for _, a := range args {
				if strings.Contains(a, "=") && !strings.HasPrefix(a, "=") {
					continue
				}
				names = append(names, filepath.Base(a))
				break
			}
		}
		if p.Position < 0 || p.Position >= len(line) || !isASCII(line) {
			break
		}
		sep := line[p.Position]
		redirect = sep == '<' || sep == '>'
		line = strings.TrimLeft(line[p.Position:], ";&|<> ")
	}
	return names
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
