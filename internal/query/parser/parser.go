package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError represents a parsing error with source location information.
// Unsupported is set for constructs the dialect intentionally rejects (e.g.
// non-prefix LIKE patterns) as opposed to plain syntax errors.
type ParseError struct {
	Message     string
	Line        int
	Column      int
	Unsupported bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Parser parses SQL statements into an AST.
type Parser struct {
	lexer    *Lexer
	curToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.nextToken()
	return p
}

// Parse parses the input and returns a Statement.
func Parse(input string) (Statement, error) {
	return NewParser(input).ParseStatement()
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// errorf builds a ParseError at the current token.
func (p *Parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{
		Message: fmt.Sprintf(format, args...),
		Line:    p.curToken.Line,
		Column:  p.curToken.Column,
	}
}

// unsupportedf builds a ParseError for an intentionally unsupported construct.
func (p *Parser) unsupportedf(format string, args ...any) *ParseError {
	err := p.errorf(format, args...)
	err.Unsupported = true
	return err
}

// ParseStatement parses a single SQL statement and requires the input to end
// after it.
func (p *Parser) ParseStatement() (Statement, error) {
	if p.curToken.Type == TokenError {
		return nil, p.errorf("unexpected character %q", p.curToken.Literal)
	}
	if !p.curTokenIs(TokenSelect) {
		return nil, p.errorf("expected SELECT, got %s", p.curToken.Type)
	}

	stmt, err := p.parseSelect()
	if err != nil {
		return nil, err
	}

	if p.curTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf("unexpected trailing input %q", p.curToken.Literal)
	}
	return stmt, nil
}

// parseSelect parses a SELECT statement.
func (p *Parser) parseSelect() (*Select, error) {
	stmt := &Select{}
	p.nextToken() // Skip SELECT

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	stmt.Items = items

	if !p.curTokenIs(TokenFrom) {
		return nil, p.errorf("expected FROM, got %s", p.curToken.Type)
	}
	p.nextToken()

	if !p.curTokenIs(TokenIdent) {
		return nil, p.errorf("expected table name, got %s", p.curToken.Type)
	}
	stmt.Table = p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenWhere) {
		p.nextToken()
		where, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.curTokenIs(TokenGroup) {
		p.nextToken()
		if !p.curTokenIs(TokenBy) {
			return nil, p.errorf("expected BY after GROUP")
		}
		p.nextToken()
		groupBy, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		stmt.GroupBy = groupBy
	}

	if p.curTokenIs(TokenOrder) {
		p.nextToken()
		if !p.curTokenIs(TokenBy) {
			return nil, p.errorf("expected BY after ORDER")
		}
		p.nextToken()
		orderBy, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = orderBy
	}

	if p.curTokenIs(TokenLimit) {
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			return nil, p.errorf("expected number after LIMIT")
		}
		limit, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil || limit < 0 {
			return nil, p.errorf("invalid LIMIT value %q", p.curToken.Literal)
		}
		stmt.Limit = &limit
		p.nextToken()
	}

	return stmt, nil
}

// parseSelectList parses "*" or a comma-separated list of columns and
// aggregate calls.
func (p *Parser) parseSelectList() ([]SelectItem, error) {
	if p.curTokenIs(TokenStar) {
		p.nextToken()
		return []SelectItem{&Star{}}, nil
	}

	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return items, nil
}

// parseSelectItem parses one select-list entry.
func (p *Parser) parseSelectItem() (SelectItem, error) {
	switch p.curToken.Type {
	case TokenCount, TokenSum, TokenAvg, TokenMin, TokenMax:
		return p.parseAggregate()
	case TokenIdent:
		name, err := p.parseColumnName()
		if err != nil {
			return nil, err
		}
		col := &Column{Name: name}
		alias, err := p.parseOptionalAlias()
		if err != nil {
			return nil, err
		}
		col.Alias = alias
		return col, nil
	default:
		return nil, p.errorf("expected column or aggregate, got %s", p.curToken.Type)
	}
}

// parseAggregate parses COUNT(*), COUNT(col), SUM/AVG/MIN/MAX(col).
func (p *Parser) parseAggregate() (SelectItem, error) {
	funcTok := p.curToken.Type
	p.nextToken()

	if !p.curTokenIs(TokenLParen) {
		return nil, p.errorf("expected ( after aggregate function")
	}
	p.nextToken()

	agg := &Aggregate{}
	switch funcTok {
	case TokenCount:
		agg.Func = AggCount
	case TokenSum:
		agg.Func = AggSum
	case TokenAvg:
		agg.Func = AggAvg
	case TokenMin:
		agg.Func = AggMin
	case TokenMax:
		agg.Func = AggMax
	}

	if p.curTokenIs(TokenStar) {
		if funcTok != TokenCount {
			return nil, p.errorf("* is only valid in COUNT")
		}
		agg.Func = AggCountAll
		p.nextToken()
	} else {
		name, err := p.parseColumnName()
		if err != nil {
			return nil, err
		}
		agg.Column = name
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected ) after aggregate argument")
	}
	p.nextToken()

	alias, err := p.parseOptionalAlias()
	if err != nil {
		return nil, err
	}
	agg.Alias = alias
	return agg, nil
}

// parseOptionalAlias parses "AS ident" when present.
func (p *Parser) parseOptionalAlias() (string, error) {
	if !p.curTokenIs(TokenAs) {
		return "", nil
	}
	p.nextToken()
	if !p.curTokenIs(TokenIdent) {
		return "", p.errorf("expected identifier after AS")
	}
	alias := p.curToken.Literal
	p.nextToken()
	return alias, nil
}

// parseColumnName parses an identifier, optionally "props."-qualified.
func (p *Parser) parseColumnName() (string, error) {
	if !p.curTokenIs(TokenIdent) {
		return "", p.errorf("expected column name, got %s", p.curToken.Type)
	}
	name := p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenDot) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			return "", p.errorf("expected identifier after dot")
		}
		name = name + "." + p.curToken.Literal
		p.nextToken()
	}
	return name, nil
}

// parseIdentList parses a comma-separated list of column names.
func (p *Parser) parseIdentList() ([]string, error) {
	var names []string
	for {
		name, err := p.parseColumnName()
		if err != nil {
			return nil, err
		}
		names = append(names, name)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return names, nil
}

// parseOrderByList parses the ORDER BY clause items.
func (p *Parser) parseOrderByList() ([]OrderItem, error) {
	var items []OrderItem
	for {
		name, err := p.parseColumnName()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Column: name}

		if p.curTokenIs(TokenAsc) {
			p.nextToken()
		} else if p.curTokenIs(TokenDesc) {
			item.Desc = true
			p.nextToken()
		}
		items = append(items, item)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	return items, nil
}

// parseOrExpr parses OR-connected expressions (lowest precedence).
func (p *Parser) parseOrExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.curTokenIs(TokenOr) {
		p.nextToken()
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

// parseAndExpr parses AND-connected expressions.
func (p *Parser) parseAndExpr() (Expr, error) {
	left, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	for p.curTokenIs(TokenAnd) {
		p.nextToken()
		right, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

// parsePredicate parses an atom optionally followed by a comparison, IN,
// BETWEEN, or LIKE.
func (p *Parser) parsePredicate() (Expr, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	switch p.curToken.Type {
	case TokenEq, TokenNe, TokenLt, TokenLe, TokenGt, TokenGe:
		op := cmpOpFor(p.curToken.Type)
		p.nextToken()
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return &CompareExpr{Op: op, Left: left, Right: right}, nil

	case TokenIn:
		return p.parseInList(left)

	case TokenBetween:
		p.nextToken()
		low, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		if !p.curTokenIs(TokenAnd) {
			return nil, p.errorf("expected AND in BETWEEN expression")
		}
		p.nextToken()
		high, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{Expr: left, Low: low, High: high}, nil

	case TokenLike:
		return p.parseLike(left)

	default:
		return left, nil
	}
}

// parseInList parses "IN (literal, ...)".
func (p *Parser) parseInList(left Expr) (Expr, error) {
	p.nextToken() // Skip IN

	if !p.curTokenIs(TokenLParen) {
		return nil, p.errorf("expected ( after IN")
	}
	p.nextToken()

	var values []Expr
	for {
		val, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		values = append(values, val)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected ) after IN values")
	}
	p.nextToken()

	return &InExpr{Expr: left, Values: values}, nil
}

// parseLike parses "LIKE 'prefix%'". Only prefix patterns are supported;
// anything else is an unsupported-feature failure.
func (p *Parser) parseLike(left Expr) (Expr, error) {
	p.nextToken() // Skip LIKE

	if !p.curTokenIs(TokenString) {
		return nil, p.errorf("expected string pattern after LIKE")
	}
	pattern := p.curToken.Literal

	if !strings.HasSuffix(pattern, "%") {
		return nil, p.unsupportedf("only prefix LIKE patterns ('prefix%%') are supported")
	}
	prefix := pattern[:len(pattern)-1]
	if strings.ContainsAny(prefix, "%_") {
		return nil, p.unsupportedf("only prefix LIKE patterns ('prefix%%') are supported")
	}
	p.nextToken()

	return &LikePrefixExpr{Expr: left, Prefix: prefix}, nil
}

// parseAtom parses a column reference, a literal, or a parenthesized
// expression.
func (p *Parser) parseAtom() (Expr, error) {
	switch p.curToken.Type {
	case TokenIdent:
		name, err := p.parseColumnName()
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Name: name}, nil

	case TokenNumber:
		return p.parseNumber(false)

	case TokenMinus:
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			return nil, p.errorf("expected number after -")
		}
		return p.parseNumber(true)

	case TokenString:
		val := p.curToken.Literal
		p.nextToken()
		return &Literal{Value: val}, nil

	case TokenLParen:
		p.nextToken()
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if !p.curTokenIs(TokenRParen) {
			return nil, p.errorf("expected )")
		}
		p.nextToken()
		return &ParenExpr{Expr: expr}, nil

	case TokenError:
		return nil, p.errorf("unexpected character %q", p.curToken.Literal)

	default:
		return nil, p.errorf("unexpected token %s in expression", p.curToken.Type)
	}
}

// parseNumber parses a numeric literal, preferring int64 over float64.
func (p *Parser) parseNumber(negative bool) (Expr, error) {
	literal := p.curToken.Literal
	p.nextToken()

	if !strings.Contains(literal, ".") {
		if val, err := strconv.ParseInt(literal, 10, 64); err == nil {
			if negative {
				val = -val
			}
			return &Literal{Value: val}, nil
		}
	}

	val, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", literal)
	}
	if negative {
		val = -val
	}
	return &Literal{Value: val}, nil
}

// cmpOpFor maps a comparison token to its operator.
func cmpOpFor(t TokenType) CmpOp {
	switch t {
	case TokenEq:
		return CmpEq
	case TokenNe:
		return CmpNe
	case TokenLt:
		return CmpLt
	case TokenLe:
		return CmpLe
	case TokenGt:
		return CmpGt
	default:
		return CmpGe
	}
}
