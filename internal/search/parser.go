package search

import (
	"fmt"
	"strings"

	"github.com/lattice-db/lattice/internal/types"
)

// Node is a node of the expression AST.
type Node interface {
	node()
	String() string
}

// ComparisonNode is one atomic predicate against a flattened field path.
// Condition reuses the structured filter vocabulary so the evaluator and
// planner serve both entry points with one implementation.
type ComparisonNode struct {
	Field     string
	Condition types.FilterCondition
	Value     string
	Values    []string // for In / NotIn
	Numeric   bool     // value was a number literal
}

func (n *ComparisonNode) node() {}
func (n *ComparisonNode) String() string {
	switch n.Condition {
	case types.CondIn, types.CondNotIn:
		return fmt.Sprintf("%s %s (%s)", n.Field, n.Condition, strings.Join(n.Values, ", "))
	case types.CondIsNull, types.CondIsNotNull:
		return fmt.Sprintf("%s %s", n.Field, n.Condition)
	default:
		return fmt.Sprintf("%s %s %s", n.Field, n.Condition, n.Value)
	}
}

// AndNode is a logical conjunction.
type AndNode struct {
	Left  Node
	Right Node
}

func (n *AndNode) node() {}
func (n *AndNode) String() string {
	return fmt.Sprintf("(%s AND %s)", n.Left.String(), n.Right.String())
}

// OrNode is a logical disjunction.
type OrNode struct {
	Left  Node
	Right Node
}

func (n *OrNode) node() {}
func (n *OrNode) String() string {
	return fmt.Sprintf("(%s OR %s)", n.Left.String(), n.Right.String())
}

// NotNode is a logical negation.
type NotNode struct {
	Operand Node
}

func (n *NotNode) node() {}
func (n *NotNode) String() string {
	return fmt.Sprintf("NOT %s", n.Operand.String())
}

// Parser parses an expression string into an AST.
type Parser struct {
	lexer   *Lexer
	current Token
}

// NewParser creates a Parser for the given input.
func NewParser(input string) *Parser {
	return &Parser{lexer: NewLexer(input)}
}

// Parse returns the root AST node.
func (p *Parser) Parse() (Node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.current.Type == TokenEOF {
		return nil, fmt.Errorf("empty expression")
	}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d (expected end of expression)", p.current.Value, p.current.Pos)
	}
	return node, nil
}

func (p *Parser) advance() error {
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

// parseOr parses OR expressions (lowest precedence).
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &AndNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.current.Type == TokenNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot() // NOT is right-associative
		if err != nil {
			return nil, err
		}
		return &NotNode{Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	if p.current.Type == TokenLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, fmt.Errorf("expected ')' at position %d, got %s", p.current.Pos, p.current.Type.String())
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Node, error) {
	if p.current.Type != TokenIdent {
		return nil, fmt.Errorf("expected field name at position %d, got %s", p.current.Pos, p.current.Type.String())
	}
	field := p.current.Value
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch p.current.Type {
	case TokenEquals:
		return p.finishBinary(field, types.CondEquals)
	case TokenNotEquals:
		return p.finishBinary(field, types.CondNotEquals)
	case TokenLess:
		return p.finishBinary(field, types.CondLessThan)
	case TokenLessEq:
		return p.finishBinary(field, types.CondLessThanOrEqual)
	case TokenGreater:
		return p.finishBinary(field, types.CondGreaterThan)
	case TokenGreaterEq:
		return p.finishBinary(field, types.CondGreaterThanOrEqual)
	case TokenContains:
		return p.finishBinary(field, types.CondContains)
	case TokenStartsWith:
		return p.finishBinary(field, types.CondStartsWith)
	case TokenEndsWith:
		return p.finishBinary(field, types.CondEndsWith)
	case TokenIn:
		return p.finishIn(field, types.CondIn)
	case TokenNot:
		// field NOT IN (...)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.current.Type != TokenIn {
			return nil, fmt.Errorf("expected IN after NOT at position %d, got %s", p.current.Pos, p.current.Type.String())
		}
		return p.finishIn(field, types.CondNotIn)
	case TokenIs:
		return p.finishIs(field)
	default:
		return nil, fmt.Errorf("expected comparison operator at position %d, got %s", p.current.Pos, p.current.Type.String())
	}
}

// finishBinary consumes the operator and one value.
func (p *Parser) finishBinary(field string, cond types.FilterCondition) (Node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	value, numeric, err := p.readValue()
	if err != nil {
		return nil, err
	}
	return &ComparisonNode{Field: field, Condition: cond, Value: value, Numeric: numeric}, nil
}

// finishIn consumes IN and a parenthesized value list.
func (p *Parser) finishIn(field string, cond types.FilterCondition) (Node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.current.Type != TokenLParen {
		return nil, fmt.Errorf("expected '(' after IN at position %d, got %s", p.current.Pos, p.current.Type.String())
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var values []string
	for {
		value, _, err := p.readValue()
		if err != nil {
			return nil, err
		}
		values = append(values, value)
		if p.current.Type == TokenComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.current.Type != TokenRParen {
		return nil, fmt.Errorf("expected ')' at position %d, got %s", p.current.Pos, p.current.Type.String())
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ComparisonNode{Field: field, Condition: cond, Values: values}, nil
}

// finishIs consumes IS [NOT] NULL.
func (p *Parser) finishIs(field string) (Node, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond := types.CondIsNull
	if p.current.Type == TokenNot {
		cond = types.CondIsNotNull
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.current.Type != TokenNull {
		return nil, fmt.Errorf("expected NULL at position %d, got %s", p.current.Pos, p.current.Type.String())
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ComparisonNode{Field: field, Condition: cond}, nil
}

// readValue consumes one literal and reports whether it was numeric.
func (p *Parser) readValue() (string, bool, error) {
	switch p.current.Type {
	case TokenIdent, TokenString:
		value := p.current.Value
		if err := p.advance(); err != nil {
			return "", false, err
		}
		return value, false, nil
	case TokenNumber:
		value := p.current.Value
		if err := p.advance(); err != nil {
			return "", false, err
		}
		return value, true, nil
	default:
		return "", false, fmt.Errorf("expected value at position %d, got %s", p.current.Pos, p.current.Type.String())
	}
}

// Parse is a convenience wrapper that parses one expression.
func Parse(input string) (Node, error) {
	return NewParser(input).Parse()
}

// FiltersToNode converts structured filters into the equivalent AND-chained
// AST so both search entry points share the planner and evaluator.
func FiltersToNode(filters []types.SearchFilter) (Node, error) {
	var root Node
	for _, f := range filters {
		if f.Field == "" {
			return nil, fmt.Errorf("filter is missing a field path")
		}
		if !f.Condition.IsValid() {
			return nil, fmt.Errorf("unknown filter condition %q", f.Condition)
		}
		atom := &ComparisonNode{
			Field:     f.Field,
			Condition: f.Condition,
			Value:     f.Value,
			Values:    f.Values,
			Numeric:   looksNumeric(f.Value),
		}
		if root == nil {
			root = atom
		} else {
			root = &AndNode{Left: root, Right: atom}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("no filters given")
	}
	return root, nil
}

func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	seenDot := false
	for i, r := range s {
		if (r == '-' || r == '+') && i == 0 {
			continue
		}
		if r == '.' && !seenDot {
			seenDot = true
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
