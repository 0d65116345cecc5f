package expr

import (
	"github.com/beatoz/fxopgen/types/xerrors"
)

// grammar:
//
//	expr    := term (('+'|'-') term)*
//	term    := unary (('*'|'/') unary)*
//	unary   := ('-'|'+') unary | power
//	power   := primary ('^' unary)?
//	primary := number | 'x' | 'pi' | name '(' expr ')' | '(' expr ')'
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, o := range ops {
		if t.text == o {
			return true
		}
	}
	return false
}

func (p *parser) parseExpr() (Node, xerrors.XError) {
	left, xerr := p.parseTerm()
	if xerr != nil {
		return nil, xerr
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, xerr := p.parseTerm()
		if xerr != nil {
			return nil, xerr
		}
		if op == "+" {
			left = &binary{op: '+', l: left, r: right}
		} else {
			left = &binary{op: '-', l: left, r: right}
		}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, xerrors.XError) {
	left, xerr := p.parseUnary()
	if xerr != nil {
		return nil, xerr
	}
	for p.isOp("*", "/") {
		op := p.next().text
		right, xerr := p.parseUnary()
		if xerr != nil {
			return nil, xerr
		}
		left = &binary{op: op[0], l: left, r: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, xerrors.XError) {
	if p.isOp("-") {
		p.next()
		u, xerr := p.parseUnary()
		if xerr != nil {
			return nil, xerr
		}
		return &neg{u: u}, nil
	}
	if p.isOp("+") {
		p.next()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Node, xerrors.XError) {
	base, xerr := p.parsePrimary()
	if xerr != nil {
		return nil, xerr
	}
	if p.isOp("^") {
		p.next()
		exp, xerr := p.parseUnary()
		if xerr != nil {
			return nil, xerr
		}
		return &binary{op: '^', l: base, r: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (Node, xerrors.XError) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return &number{val: t.num}, nil
	case tokLParen:
		n, xerr := p.parseExpr()
		if xerr != nil {
			return nil, xerr
		}
		if p.next().kind != tokRParen {
			return nil, xerrors.ErrParse.Wrapf("missing ')' for '(' at %d", t.pos)
		}
		return n, nil
	case tokIdent:
		switch t.text {
		case "x":
			return variable{}, nil
		case "pi":
			return piConst{}, nil
		}
		fn, ok := functions[t.text]
		if !ok {
			return nil, xerrors.ErrParse.Wrapf("unknown name %q at %d", t.text, t.pos)
		}
		if p.next().kind != tokLParen {
			return nil, xerrors.ErrParse.Wrapf("expected '(' after %s at %d", t.text, t.pos)
		}
		arg, xerr := p.parseExpr()
		if xerr != nil {
			return nil, xerr
		}
		if p.next().kind != tokRParen {
			return nil, xerrors.ErrParse.Wrapf("missing ')' for %s at %d", t.text, t.pos)
		}
		return &call{fn: fn, u: arg}, nil
	case tokEOF:
		return nil, xerrors.ErrParse.Wrapf("unexpected end of expression")
	}
	return nil, xerrors.ErrParse.Wrapf("unexpected %q at %d", t.text, t.pos)
}

func parse(src string) (Node, xerrors.XError) {
	toks, xerr := tokenize(src)
	if xerr != nil {
		return nil, xerr
	}
	p := &parser{toks: toks}
	n, xerr := p.parseExpr()
	if xerr != nil {
		return nil, xerr
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, xerrors.ErrParse.Wrapf("unexpected %q at %d", t.text, t.pos)
	}
	return n, nil
}
