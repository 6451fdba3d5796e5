package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_WellFormedPlan(t *testing.T) {
	comments := From("Comment")
	p := From("Post").
		Where(L("p", AllOf(Gt(Path("p.Rating"), Lit(3)), Negate(Eq(Path("p.Title"), Lit(nil)))))).
		OrderBy(L("p", Path("p.Title"))).
		ThenByDescending(L("p", Path("p.Id"))).
		SkipParam("offset").
		Take(10).
		LeftJoin(comments, L("p", Path("p.Id")), L("c", Path("c.PostId")), L2("p", "c", Tuple(F("post", V("p")), F("comment", V("c"))))).
		Count()

	result := Validate(p)
	assert.True(t, result.Valid, result.Problems)
	assert.Empty(t, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_UnboundVariable(t *testing.T) {
	p := From("Product").Where(L("p", Gt(Path("x.Price"), Lit(1)))).Plan()

	result := Validate(p)
	assert.False(t, result.Valid)
	require.Len(t, result.Problems, 1)
	assert.Contains(t, result.Problems[0], `step 1 (Filter): unbound variable "x"`)
}

func TestValidate_LambdaArity(t *testing.T) {
	p := From("Product").
		Select(L2("a", "b", V("a"))).
		SelectManyWith(L("p", Path("p.Lines")), L("x", V("x"))).
		Plan()

	result := Validate(p)
	require.Len(t, result.Problems, 2)
	assert.Contains(t, result.Problems[0], "takes 2 parameter(s), want 1")
	assert.Contains(t, result.Problems[1], "step 2 (FlattenJoin) result")
}

func TestValidate_Counts(t *testing.T) {
	p := New("Product").
		AddStep(Skip{Count: Lit(-1)}).
		AddStep(Take{Count: Lit("two")}).
		AddStep(Take{Count: Path("p.N")})

	result := Validate(p)
	require.Len(t, result.Problems, 3)
	assert.Contains(t, result.Problems[0], "must not be negative")
	assert.Contains(t, result.Problems[1], "must be an integer")
	assert.Contains(t, result.Problems[2], "constant or parameter")
}

func TestValidate_AllRequiresPredicate(t *testing.T) {
	p := New("Product").WithTerminal(All, nil)

	result := Validate(p)
	require.Len(t, result.Problems, 1)
	assert.Contains(t, result.Problems[0], "terminal All: predicate is required")
}

func TestValidate_InnerPlanTerminal(t *testing.T) {
	inner := From("Comment").Where(L("c", Lit(true)))
	innerWithTerminal := Of(inner.Plan().WithTerminal(Count, nil))
	p := From("Post").LeftJoin(innerWithTerminal, L("p", Path("p.Id")), L("c", Path("c.PostId")), L2("p", "c", V("c"))).Plan()

	result := Validate(p)
	require.NotEmpty(t, result.Problems)
	assert.Contains(t, result.Problems[0], "inner plan must not have a terminal operator")
}

func TestValidate_EmptyEntityAndNilStep(t *testing.T) {
	p := New("").AddStep(nil)

	result := Validate(p)
	require.Len(t, result.Problems, 2)
	assert.Contains(t, result.Problems[0], "plan has no entity")
	assert.Contains(t, result.Problems[1], "nil step")
}

func TestValidate_DuplicateTupleField(t *testing.T) {
	p := From("Product").Select(L("p", Tuple(F("a", Path("p.Id")), F("a", Path("p.Name"))))).Plan()

	result := Validate(p)
	require.Len(t, result.Problems, 1)
	assert.Contains(t, result.Problems[0], `duplicate tuple field "a"`)
}
