package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// CalculatorTool evaluates arithmetic expressions. It supports the four
// basic operators, parentheses, unary minus, and the modulo and power
// operators.
type CalculatorTool struct{}

// NewCalculatorTool creates a calculator tool.
func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

func (t *CalculatorTool) Name() string { return "calculator" }

func (t *CalculatorTool) Description() string {
	return "Evaluates an arithmetic expression. Supports + - * / % ^ and parentheses, e.g. \"(2 + 3) * 4\"."
}

func (t *CalculatorTool) InputSchema() string {
	return `{"type": "object", "properties": {"expression": {"type": "string", "description": "The expression to evaluate"}}, "required": ["expression"]}`
}

type calcInput struct {
	Expression string `json:"expression"`
}

func (t *CalculatorTool) Execute(ctx context.Context, input string) (string, error) {
	var in calcInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "", fmt.Errorf("parsing input: %w", err)
	}
	if strings.TrimSpace(in.Expression) == "" {
		return "", fmt.Errorf("expression must not be empty")
	}

	p := &exprParser{src: in.Expression}
	val, err := p.parse()
	if err != nil {
		return "", err
	}
	if math.IsInf(val, 0) || math.IsNaN(val) {
		return "", fmt.Errorf("expression has no finite result")
	}

	return strconv.FormatFloat(val, 'f', -1, 64), nil
}

// exprParser is a recursive descent parser over a single expression.
// Grammar, lowest precedence first:
//
//	expr   = term   (('+' | '-') term)*
//	term   = power  (('*' | '/' | '%') power)*
//	power  = unary  ('^' power)?          right associative
//	unary  = '-' unary | primary
//	primary = number | '(' expr ')'
type exprParser struct {
	src string
	pos int
}

func (p *exprParser) parse() (float64, error) {
	val, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	return val, nil
}

func (p *exprParser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) term() (float64, error) {
	left, err := p.power()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.power()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.power()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			p.pos++
			right, err := p.power()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) power() (float64, error) {
	base, err := p.unary()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.peek() == '^' {
		p.pos++
		exp, err := p.power()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) unary() (float64, error) {
	p.skipSpace()
	if p.peek() == '-' {
		p.pos++
		val, err := p.unary()
		if err != nil {
			return 0, err
		}
		return -val, nil
	}
	return p.primary()
}

func (p *exprParser) primary() (float64, error) {
	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		val, err := p.expr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return val, nil
	}
	return p.number()
}

func (p *exprParser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if unicode.IsDigit(rune(c)) || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		if p.pos >= len(p.src) {
			return 0, fmt.Errorf("unexpected end of expression")
		}
		return 0, fmt.Errorf("unexpected %q at position %d", p.src[p.pos], p.pos)
	}
	val, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.src[start:p.pos])
	}
	return val, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}
