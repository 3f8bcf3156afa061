// Package query filters evaluated transactions with CEL expressions.
package query

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ErrInvalidExpression is returned when a filter does not compile or does not return bool.
var ErrInvalidExpression = errors.New("invalid filter expression")

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

func newEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("user_id", cel.IntType),
			cel.Variable("amount", cel.DoubleType),
			cel.Variable("merchant", cel.StringType),
			cel.Variable("hour", cel.IntType),
			cel.Variable("suspicious", cel.BoolType),
			cel.Variable("reasons", cel.ListType(cel.StringType)),
			cel.Variable("categories", cel.ListType(cel.StringType)),
		)
	})
	return env, envErr
}

// Filter is a compiled boolean expression over one transaction.
type Filter struct {
	expr    string
	program cel.Program
}

// Compile parses and type-checks expr. It must evaluate to bool.
func Compile(expr string) (*Filter, error) {
	e, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := e.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: must return bool, got %s", ErrInvalidExpression, ast.OutputType())
	}

	program, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}
	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match reports whether tx satisfies the filter.
func (f *Filter) Match(tx *domain.Transaction) (bool, error) {
	out, _, err := f.program.Eval(activation(tx))
	if err != nil {
		return false, fmt.Errorf("filter %q: %w", f.expr, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("filter %q: non-bool result %v", f.expr, out)
	}
	return bool(b), nil
}

// Apply returns the matching transactions in input order.
func (f *Filter) Apply(txs []*domain.Transaction) ([]*domain.Transaction, error) {
	out := make([]*domain.Transaction, 0)
	for _, tx := range txs {
		ok, err := f.Match(tx)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

func activation(tx *domain.Transaction) map[string]any {
	categories := make([]string, 0, len(tx.Flags))
	for _, fl := range tx.Flags {
		categories = append(categories, fl.Category)
	}
	return map[string]any{
		"user_id":    tx.UserID,
		"amount":     tx.Amount,
		"merchant":   tx.MerchantName,
		"hour":       int64(tx.Hour()),
		"suspicious": tx.IsSuspicious,
		"reasons":    tx.Reasons(),
		"categories": categories,
	}
}
