package matcher

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/patchwire/intercept/pkg/contracts"
	"github.com/patchwire/intercept/pkg/models"
)

// exprEnv is the typed view an ExprPredicate expression evaluates against:
// the request's fields, with headers exposed as a map so an expression can
// index any header name without a schema change here. The query is exposed
// only as the raw query string.
type exprEnv struct {
	Method  string              `expr:"method"`
	Scheme  string              `expr:"scheme"`
	Host    string              `expr:"host"`
	Port    string              `expr:"port"`
	Path    string              `expr:"path"`
	Query   string              `expr:"query"`
	Headers map[string][]string `expr:"headers"`
	Body    string              `expr:"body"`
}

// ExprPredicate compiles a boolean expr-lang expression into a Matcher.
// It is the bundle format's escape hatch (SPEC_FULL.md §4) for matches
// the fixed JSON schema in spec.md §6.1 cannot express — e.g. "header
// Accept contains either of two values" or a cross-field comparison.
//
// The expression sees method, scheme, host, port, path, query, headers
// (lower-cased keys), and body (as a string) and must evaluate to a bool.
func ExprPredicate(expression string) (contracts.Matcher, error) {
	program, err := expr.Compile(expression, expr.Env(exprEnv{}), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &exprMatcher{program: program}, nil
}

type exprMatcher struct {
	program *vm.Program
}

func (m *exprMatcher) IsMatch(req *models.Request) bool {
	body, _ := req.BodyBytes()
	env := exprEnv{
		Method:  req.Method,
		Scheme:  req.Scheme,
		Host:    req.Host,
		Port:    req.Port,
		Path:    req.Path,
		Query:   req.Query,
		Headers: map[string][]string(req.Headers),
		Body:    string(body),
	}
	out, err := expr.Run(m.program, env)
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}
