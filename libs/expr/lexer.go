package expr

import (
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/beatoz/fxopgen/types/xerrors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
	num  *big.Rat
}

func tokenize(src string) ([]token, xerrors.XError) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsDigit(c) || c == '.':
			j, num, xerr := scanNumber(rs, i)
			if xerr != nil {
				return nil, xerr
			}
			toks = append(toks, token{kind: tokNum, text: string(rs[i:j]), pos: i, num: num})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: strings.ToLower(string(rs[i:j])), pos: i})
			i = j
		case strings.ContainsRune("+-*/^", c):
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		default:
			return nil, xerrors.ErrParse.Wrapf("unexpected character %q at %d", c, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

// scanNumber reads a decimal literal with an optional decimal exponent
// (1.5e-3) or binary exponent (1b-3, meaning 2^-3).
func scanNumber(rs []rune, i int) (int, *big.Rat, xerrors.XError) {
	j := i
	for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
		j++
	}
	mant := string(rs[i:j])
	if strings.Count(mant, ".") > 1 || mant == "." {
		return 0, nil, xerrors.ErrParse.Wrapf("malformed number %q at %d", mant, i)
	}
	num, ok := new(big.Rat).SetString(mant)
	if !ok {
		return 0, nil, xerrors.ErrParse.Wrapf("malformed number %q at %d", mant, i)
	}
	if j < len(rs) && strings.ContainsRune("eEbB", rs[j]) {
		k := j + 1
		if k < len(rs) && (rs[k] == '+' || rs[k] == '-') {
			k++
		}
		d := k
		for d < len(rs) && unicode.IsDigit(rs[d]) {
			d++
		}
		if d == k {
			return 0, nil, xerrors.ErrParse.Wrapf("missing exponent at %d", j)
		}
		e, err := strconv.Atoi(string(rs[j+1 : d]))
		if err != nil || e > 4096 || e < -4096 {
			return 0, nil, xerrors.ErrParse.Wrapf("bad exponent %q at %d", string(rs[j+1:d]), j)
		}
		base := int64(10)
		if rs[j] == 'b' || rs[j] == 'B' {
			base = 2
		}
		num.Mul(num, ratPow(base, e))
		j = d
	}
	return j, num, nil
}

func ratPow(base int64, e int) *big.Rat {
	ae := e
	if ae < 0 {
		ae = -ae
	}
	p := new(big.Int).Exp(big.NewInt(base), big.NewInt(int64(ae)), nil)
	if e < 0 {
		return new(big.Rat).SetFrac(big.NewInt(1), p)
	}
	return new(big.Rat).SetInt(p)
}
