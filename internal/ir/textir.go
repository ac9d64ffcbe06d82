package ir

// ParseTextIR reads a small s-expression notation for a whole program,
// used only by cmd/xccore to make the core invokable from a shell
// (spec.md's own input is an already-parsed, type-checked Go value;
// this textual form exists purely as a CLI convenience and is outside
// the spec's scope). Grammar:
//
//	(program <entry-name>
//	  (fn <name> (<param>...) <expr>)...)
//
//	<expr> ::= (lit <int>) | (lit true) | (lit false) | (lit unit)
//	         | (var <name>)
//	         | (funref <name>)
//	         | (prim <op> <expr>...)
//	         | (apply <expr> <expr>...)
//	         | (let <name> <expr> <expr>)
//	         | (if <expr> <expr> <expr>)
//	         | (loop <expr>) | (break) | (continue)
//	         | (seq <expr> <expr>)
//	         | (return <expr>)
//
// Every <name> becomes a fresh Symbol keyed by source text within one
// parse, so the same name in the same function always resolves to the
// same Symbol.
import (
	"fmt"
	"strconv"
)

type textParser struct {
	toks []string
	pos  int
	syms map[string]Symbol
}

func ParseTextIR(src string) (*Program, error) {
	p := &textParser{toks: tokenize(src), syms: make(map[string]Symbol)}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	if err := p.expectAtom("program"); err != nil {
		return nil, err
	}
	entryName, err := p.atom()
	if err != nil {
		return nil, err
	}

	prog := NewProgram(p.symbolFor(entryName))
	for p.peek() == "(" {
		fn, err := p.parseFn()
		if err != nil {
			return nil, err
		}
		prog.AddFunc(fn)
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return prog, nil
}

func (p *textParser) symbolFor(name string) Symbol {
	if s, ok := p.syms[name]; ok {
		return s
	}
	s := NewSymbol(name)
	p.syms[name] = s
	return s
}

func (p *textParser) parseFn() (*FnDef, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	if err := p.expectAtom("fn"); err != nil {
		return nil, err
	}
	name, err := p.atom()
	if err != nil {
		return nil, err
	}

	if err := p.expect("("); err != nil {
		return nil, err
	}
	var params []Param
	for p.peek() != ")" {
		pname, err := p.atom()
		if err != nil {
			return nil, err
		}
		params = append(params, Param{Sym: p.symbolFor(pname), Type: I64()})
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}

	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	return &FnDef{Sym: p.symbolFor(name), Params: params, Ret: I64(), Body: body}, nil
}

func (p *textParser) parseExpr() (Expr, error) {
	if err := p.expect("("); err != nil {
		return Expr{}, err
	}
	tag, err := p.atom()
	if err != nil {
		return Expr{}, err
	}

	switch tag {
	case "lit":
		v, err := p.atom()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		switch v {
		case "true":
			return Lit(Bool(true)), nil
		case "false":
			return Lit(Bool(false)), nil
		case "unit":
			return Lit(Unit()), nil
		default:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Expr{}, fmt.Errorf("bad literal %q: %w", v, err)
			}
			return Lit(Int(n)), nil
		}

	case "var":
		name, err := p.atom()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return VarRef(p.symbolFor(name)), nil

	case "funref":
		name, err := p.atom()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return FunRef(p.symbolFor(name)), nil

	case "prim":
		opName, err := p.atom()
		if err != nil {
			return Expr{}, err
		}
		op, ok := opFromText(opName)
		if !ok {
			return Expr{}, fmt.Errorf("unknown primitive op %q", opName)
		}
		var args []Expr
		for p.peek() != ")" {
			a, err := p.parseExpr()
			if err != nil {
				return Expr{}, err
			}
			args = append(args, a)
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return Prim(op, args...), nil

	case "apply":
		fn, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		var args []Expr
		for p.peek() != ")" {
			a, err := p.parseExpr()
			if err != nil {
				return Expr{}, err
			}
			args = append(args, a)
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return Apply(fn, args...), nil

	case "let":
		name, err := p.atom()
		if err != nil {
			return Expr{}, err
		}
		init, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return Let(p.symbolFor(name), init, body), nil

	case "if":
		cond, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return If(cond, then, els), nil

	case "loop":
		body, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return Loop(body), nil

	case "break":
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return Break(), nil

	case "continue":
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return Continue(), nil

	case "seq":
		first, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		rest, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return Seq(first, rest), nil

	case "return":
		v, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expect(")"); err != nil {
			return Expr{}, err
		}
		return Return(v), nil

	default:
		return Expr{}, fmt.Errorf("unknown expression tag %q", tag)
	}
}

func opFromText(s string) (Op, bool) {
	names := map[string]Op{
		"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
		"and": OpAnd, "or": OpOr, "xor": OpXor, "not": OpNot,
		"<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe, "=": OpEq, "!=": OpNe,
		"read": OpRead, "print": OpPrint,
	}
	op, ok := names[s]
	return op, ok
}

func (p *textParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *textParser) atom() (string, error) {
	if p.pos >= len(p.toks) {
		return "", fmt.Errorf("unexpected end of input")
	}
	t := p.toks[p.pos]
	if t == "(" || t == ")" {
		return "", fmt.Errorf("expected an atom, got %q", t)
	}
	p.pos++
	return t, nil
}

func (p *textParser) expect(tok string) error {
	if p.peek() != tok {
		return fmt.Errorf("expected %q, got %q", tok, p.peek())
	}
	p.pos++
	return nil
}

func (p *textParser) expectAtom(tok string) error {
	a, err := p.atom()
	if err != nil {
		return err
	}
	if a != tok {
		return fmt.Errorf("expected %q, got %q", tok, a)
	}
	return nil
}

// tokenize splits src into parens and whitespace-delimited atoms.
func tokenize(src string) []string {
	var toks []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			toks = append(toks, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range src {
		switch {
		case r == '(' || r == ')':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return toks
}
