// Package transform translates raw test-script source into an executable,
// instrumented Program before it is loaded by a worker.
//
// Instrumentation hooks are inserted at every statement, branch arm and
// function boundary, each keyed by a stable source-position identifier
// (path:line, with a :0/:1 suffix for branch arms). The same source text
// always yields the same key set, so repeated runs without source changes
// produce byte-identical coverage keys.
package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/covergate/covergate/types"
)

// Statement operations understood by the interpreter.
const (
	OpLet        = "let"
	OpCall       = "call"
	OpAssert     = "assert"
	OpIf         = "if"
	OpMock       = "mock"
	OpSleep      = "sleep"
	OpOpen       = "open"
	OpClose      = "close"
	OpDeprecated = "deprecated"
	OpPrint      = "print"
)

// Stmt is one executable statement. Then/Else are populated for OpIf only.
type Stmt struct {
	Op      string   `json:"op"`
	Line    int      `json:"line"`
	Args    []string `json:"args,omitempty"`
	Key     string   `json:"key"`
	ThenKey string   `json:"thenKey,omitempty"`
	ElseKey string   `json:"elseKey,omitempty"`
	Then    []*Stmt  `json:"then,omitempty"`
	Else    []*Stmt  `json:"else,omitempty"`
}

// Import is a symbolic module dependency declared by the file.
type Import struct {
	Name string `json:"name"`
	Spec string `json:"spec"`
	Line int    `json:"line"`
}

// Func is a named function boundary with its own instrumentation key.
type Func struct {
	Name string  `json:"name"`
	Line int     `json:"line"`
	Key  string  `json:"key"`
	Body []*Stmt `json:"body"`
}

// Case is one test case in discovery order.
type Case struct {
	Name string  `json:"name"`
	Line int     `json:"line"`
	Body []*Stmt `json:"body"`
}

// Template enumerates every instrumentable position of a Program. It is the
// zero-count shape of the file's coverage counter set.
type Template struct {
	Statements []string `json:"statements"`
	Branches   []string `json:"branches"`
	Functions  []string `json:"functions"`
	Lines      []string `json:"lines"`
}

// Program is the executable, instrumented form of one source file.
type Program struct {
	Path     string   `json:"path"`
	Imports  []Import `json:"imports,omitempty"`
	Funcs    []*Func  `json:"funcs,omitempty"`
	Cases    []*Case  `json:"cases,omitempty"`
	Init     []*Stmt  `json:"init,omitempty"`
	Counters Template `json:"counters"`
}

// CaseNames returns the nominal case names in discovery order.
func (p *Program) CaseNames() []types.TestCase {
	out := make([]types.TestCase, 0, len(p.Cases))
	for _, c := range p.Cases {
		out = append(out, types.TestCase{Name: c.Name, Line: c.Line})
	}
	return out
}

// Func looks up a function by name.
func (p *Program) Func(name string) (*Func, bool) {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Parse translates source text into an instrumented Program. A syntax error
// returns a TransformError carrying the offending line; the caller fails the
// whole file's WorkerTask with it.
func Parse(path string, src []byte) (*Program, error) {
	p := &parser{prog: &Program{Path: path}}
	if err := p.run(string(src)); err != nil {
		return nil, err
	}
	instrument(p.prog)
	return p.prog, nil
}

type blockKind int

const (
	blockFunc blockKind = iota
	blockCase
	blockThen
	blockElse
)

type openBlock struct {
	kind blockKind
	fn   *Func
	cs   *Case
	ifst *Stmt
}

type parser struct {
	prog  *Program
	stack []openBlock
}

func (p *parser) errf(line int, format string, args ...any) error {
	return &types.TransformError{Path: p.prog.Path, Line: line, Err: fmt.Errorf(format, args...)}
}

func (p *parser) run(src string) error {
	for i, raw := range strings.Split(src, "\n") {
		line := i + 1
		toks, err := tokenize(raw)
		if err != nil {
			return p.errf(line, "%v", err)
		}
		if len(toks) == 0 {
			continue
		}
		if err := p.line(line, toks); err != nil {
			return err
		}
	}
	if len(p.stack) != 0 {
		return p.errf(0, "unexpected end of file: %d unclosed block(s)", len(p.stack))
	}
	return nil
}

func (p *parser) line(line int, toks []string) error {
	switch toks[0] {
	case "}":
		return p.closeBlock(line, toks)
	case "import":
		if len(p.stack) != 0 {
			return p.errf(line, "import is only allowed at top level")
		}
		if len(toks) != 3 {
			return p.errf(line, "import wants a name and a quoted spec")
		}
		p.prog.Imports = append(p.prog.Imports, Import{Name: toks[1], Spec: toks[2], Line: line})
		return nil
	case "func":
		if len(p.stack) != 0 {
			return p.errf(line, "func is only allowed at top level")
		}
		if len(toks) != 3 || toks[2] != "{" {
			return p.errf(line, "func wants a name followed by '{'")
		}
		fn := &Func{Name: toks[1], Line: line}
		p.prog.Funcs = append(p.prog.Funcs, fn)
		p.stack = append(p.stack, openBlock{kind: blockFunc, fn: fn})
		return nil
	case "test":
		if len(p.stack) != 0 {
			return p.errf(line, "test is only allowed at top level")
		}
		if len(toks) != 3 || toks[2] != "{" {
			return p.errf(line, "test wants a quoted name followed by '{'")
		}
		cs := &Case{Name: toks[1], Line: line}
		p.prog.Cases = append(p.prog.Cases, cs)
		p.stack = append(p.stack, openBlock{kind: blockCase, cs: cs})
		return nil
	}
	return p.stmt(line, toks)
}

func (p *parser) stmt(line int, toks []string) error {
	st := &Stmt{Op: toks[0], Line: line}
	switch toks[0] {
	case OpIf:
		if len(toks) != 3 || toks[2] != "{" {
			return p.errf(line, "if wants a condition followed by '{'")
		}
		st.Args = toks[1:2]
		p.appendOrInit(st)
		p.stack = append(p.stack, openBlock{kind: blockThen, ifst: st})
		return nil
	case OpLet:
		if len(toks) != 3 {
			return p.errf(line, "let wants a name and a value")
		}
	case OpCall, OpMock, OpClose, OpDeprecated, OpPrint:
		if len(toks) != 2 {
			return p.errf(line, "%s wants exactly one argument", toks[0])
		}
	case OpAssert:
		if len(toks) < 3 || len(toks) > 4 {
			return p.errf(line, "assert wants an operator and one or two operands")
		}
		switch toks[1] {
		case "eq", "ne", "calls":
			if len(toks) != 4 {
				return p.errf(line, "assert %s wants two operands", toks[1])
			}
		case "true":
			if len(toks) != 3 {
				return p.errf(line, "assert true wants one operand")
			}
		default:
			return p.errf(line, "unknown assert operator %q", toks[1])
		}
	case OpSleep:
		if len(toks) != 2 {
			return p.errf(line, "sleep wants a duration")
		}
		if _, err := time.ParseDuration(toks[1]); err != nil {
			return p.errf(line, "bad duration %q", toks[1])
		}
	case OpOpen:
		if len(toks) != 3 {
			return p.errf(line, "open wants a kind and a name")
		}
		switch toks[1] {
		case "timer", "socket", "file":
		default:
			return p.errf(line, "unknown handle kind %q", toks[1])
		}
	default:
		return p.errf(line, "unknown statement %q", toks[0])
	}
	st.Args = toks[1:]
	p.appendOrInit(st)
	return nil
}

func (p *parser) append(st *Stmt) {
	top := &p.stack[len(p.stack)-1]
	switch top.kind {
	case blockFunc:
		top.fn.Body = append(top.fn.Body, st)
	case blockCase:
		top.cs.Body = append(top.cs.Body, st)
	case blockThen:
		top.ifst.Then = append(top.ifst.Then, st)
	case blockElse:
		top.ifst.Else = append(top.ifst.Else, st)
	}
}

// Statements outside any block run once at load time.
func (p *parser) appendOrInit(st *Stmt) {
	if len(p.stack) == 0 {
		p.prog.Init = append(p.prog.Init, st)
		return
	}
	p.append(st)
}

func (p *parser) closeBlock(line int, toks []string) error {
	if len(p.stack) == 0 {
		return p.errf(line, "unmatched '}'")
	}
	top := p.stack[len(p.stack)-1]

	// "} else {" closes the then-arm and opens the else-arm in place.
	if len(toks) == 3 && toks[1] == "else" && toks[2] == "{" {
		if top.kind != blockThen {
			return p.errf(line, "else without matching if")
		}
		p.stack[len(p.stack)-1].kind = blockElse
		return nil
	}
	if len(toks) != 1 {
		return p.errf(line, "unexpected tokens after '}'")
	}
	p.stack = p.stack[:len(p.stack)-1]
	return nil
}

// tokenize splits a line on whitespace, honoring double-quoted strings and
// stripping '#' comments.
func tokenize(raw string) ([]string, error) {
	var toks []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range raw {
		switch {
		case r == '"':
			if inQuote {
				toks = append(toks, cur.String())
				cur.Reset()
				inQuote = false
			} else {
				flush()
				inQuote = true
			}
		case inQuote:
			cur.WriteRune(r)
		case r == '#':
			flush()
			return toks, nil
		case r == ' ' || r == '\t' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string")
	}
	flush()
	return toks, nil
}

// instrument assigns a stable counter key to every statement, branch arm and
// function boundary and records them in the Program's Template.
func instrument(prog *Program) {
	t := &prog.Counters
	lines := map[int]bool{}

	var walk func(stmts []*Stmt)
	walk = func(stmts []*Stmt) {
		for _, st := range stmts {
			st.Key = posKey(prog.Path, st.Line)
			t.Statements = append(t.Statements, st.Key)
			lines[st.Line] = true
			if st.Op == OpIf {
				st.ThenKey = st.Key + ":0"
				st.ElseKey = st.Key + ":1"
				t.Branches = append(t.Branches, st.ThenKey, st.ElseKey)
				walk(st.Then)
				walk(st.Else)
			}
		}
	}

	walk(prog.Init)
	for _, fn := range prog.Funcs {
		fn.Key = posKey(prog.Path, fn.Line)
		t.Functions = append(t.Functions, fn.Key)
		walk(fn.Body)
	}
	for _, cs := range prog.Cases {
		walk(cs.Body)
	}

	for line := range lines {
		t.Lines = append(t.Lines, posKey(prog.Path, line))
	}
	sortKeys(t.Lines)
}

func posKey(path string, line int) string {
	return path + ":" + strconv.Itoa(line)
}

// sortKeys orders position keys numerically by line for stable templates.
func sortKeys(keys []string) {
	lineOf := func(k string) int {
		idx := strings.LastIndex(k, ":")
		n, _ := strconv.Atoi(k[idx+1:])
		return n
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && lineOf(keys[j]) < lineOf(keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}
