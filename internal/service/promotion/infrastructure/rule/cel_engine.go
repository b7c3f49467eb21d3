package rule

import (
	"sync"

	"nexus-ledger/internal/service/promotion/domain"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// CELRuleEngine 是 domain.RuleEngine 的 CEL 实现。
// 表达式中可用的变量：user_id (string)、amount (double)、item_count (int)、product_ids (list<string>)。
type CELRuleEngine struct {
	env      *cel.Env
	programs sync.Map // 表达式 -> cel.Program
}

// NewCELRuleEngine 创建规则引擎
func NewCELRuleEngine() (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("user_id", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("product_ids", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	return &CELRuleEngine{env: env}, nil
}

// Evaluate 实现 domain.RuleEngine。空表达式视为无条件通过。
func (e *CELRuleEngine) Evaluate(ruleDefinition string, fact domain.Fact) (bool, error) {
	if ruleDefinition == "" {
		return true, nil
	}
	prg, err := e.program(ruleDefinition)
	if err != nil {
		return false, err
	}

	productIDs := fact.ProductIDs
	if productIDs == nil {
		productIDs = []string{}
	}
	out, _, err := prg.Eval(map[string]interface{}{
		"user_id":     fact.UserID,
		"amount":      fact.Amount,
		"item_count":  fact.ItemCount,
		"product_ids": productIDs,
	})
	if err != nil {
		return false, errors.WithMessagef(domain.ErrInvalidCondition, "evaluate %q: %v", ruleDefinition, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.WithMessagef(domain.ErrInvalidCondition, "%q did not evaluate to bool", ruleDefinition)
	}
	return result, nil
}

func (e *CELRuleEngine) program(expr string) (cel.Program, error) {
	if p, ok := e.programs.Load(expr); ok {
		return p.(cel.Program), nil
	}
	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.WithMessagef(domain.ErrInvalidCondition, "compile %q: %v", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.WithMessagef(domain.ErrInvalidCondition, "%q must return bool, got %v", expr, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.WithMessagef(domain.ErrInvalidCondition, "program %q: %v", expr, err)
	}
	e.programs.Store(expr, prg)
	return prg, nil
}
