package plugins

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Compatibility is the result of checking a version against a constraint
// expression. Computed on demand, never stored.
type Compatibility struct {
	Compatible bool
	Reason     string
}

// The constraint grammar is one clause, or a conjunction of two clauses
// forming a closed range:
//
//	>=1.0.0
//	~=1.4          (compatible release: >=1.4.0, <1.5.0)
//	>=1.0.0, <2.0.0
//
// Comparison follows semantic-version precedence, pre-releases sorting
// before the corresponding release.
type clause struct {
	op    string
	ver   *semver.Version
	upper *semver.Version // only for ~=
}

var clauseOps = []string{">=", "<=", "==", "~=", ">", "<"}

// Satisfies reports whether version satisfies the constraint expression.
// Malformed expressions are an error, never "compatible".
func Satisfies(version, expression string) (bool, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", version, err)
	}

	clauses, err := parseConstraint(expression)
	if err != nil {
		return false, err
	}

	for _, c := range clauses {
		if !c.matches(v) {
			return false, nil
		}
	}
	return true, nil
}

// CheckCompatibility folds parse failures into the result so callers that
// only need a verdict with a human-readable reason have one call to make.
func CheckCompatibility(version, expression string) Compatibility {
	ok, err := Satisfies(version, expression)
	if err != nil {
		return Compatibility{Compatible: false, Reason: err.Error()}
	}
	if !ok {
		return Compatibility{
			Compatible: false,
			Reason:     fmt.Sprintf("version %s does not satisfy %q", version, expression),
		}
	}
	return Compatibility{Compatible: true}
}

// ValidateConstraint parses the expression and reports syntax errors without
// evaluating it.
func ValidateConstraint(expression string) error {
	_, err := parseConstraint(expression)
	return err
}

func parseConstraint(expression string) ([]clause, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil, &ConstraintSyntaxError{Expression: expression, Reason: "empty expression"}
	}

	parts := strings.Split(trimmed, ",")
	if len(parts) > 2 {
		return nil, &ConstraintSyntaxError{
			Expression: expression,
			Reason:     fmt.Sprintf("at most two clauses allowed, got %d", len(parts)),
		}
	}

	clauses := make([]clause, 0, len(parts))
	for _, part := range parts {
		c, err := parseClause(expression, strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

func parseClause(expression, text string) (clause, error) {
	if text == "" {
		return clause{}, &ConstraintSyntaxError{Expression: expression, Reason: "empty clause"}
	}

	var op string
	for _, candidate := range clauseOps {
		if strings.HasPrefix(text, candidate) {
			op = candidate
			break
		}
	}
	if op == "" {
		return clause{}, &ConstraintSyntaxError{
			Expression: expression,
			Reason:     fmt.Sprintf("clause %q has no operator (want >=, <=, ==, ~=, > or <)", text),
		}
	}

	literal := strings.TrimSpace(text[len(op):])
	if literal == "" {
		return clause{}, &ConstraintSyntaxError{
			Expression: expression,
			Reason:     fmt.Sprintf("clause %q is missing a version", text),
		}
	}

	ver, err := semver.NewVersion(literal)
	if err != nil {
		return clause{}, &ConstraintSyntaxError{
			Expression: expression,
			Reason:     fmt.Sprintf("clause %q: invalid version %q", text, literal),
		}
	}

	c := clause{op: op, ver: ver}
	if op == "~=" {
		c.upper = compatibleReleaseUpper(literal, ver)
	}
	return c, nil
}

// compatibleReleaseUpper bumps the last segment the author actually wrote:
// ~=1.4 and ~=1.4.2 both stop short of 1.5.0, ~=2 stops short of 3.0.0.
func compatibleReleaseUpper(literal string, ver *semver.Version) *semver.Version {
	core := literal
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	var upper semver.Version
	if strings.Count(core, ".") == 0 {
		upper = ver.IncMajor()
	} else {
		upper = ver.IncMinor()
	}
	return &upper
}

func (c clause) matches(v *semver.Version) bool {
	cmp := v.Compare(c.ver)
	switch c.op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case "==":
		return cmp == 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case "~=":
		return cmp >= 0 && v.Compare(c.upper) < 0
	}
	return false
}
