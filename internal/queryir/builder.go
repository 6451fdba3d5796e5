package queryir

// Query is a fluent builder over Plan. Each method returns a new Query;
// a Query value may be branched freely.
//
//	q := queryir.From("Product").
//		Where(queryir.L("p", queryir.Gt(queryir.Path("p.Price"), queryir.Lit(10)))).
//		OrderBy(queryir.L("p", queryir.Path("p.Name"))).
//		Take(5)
//	count := q.Count()
type Query struct {
	plan *Plan
}

// From starts a query over entity.
func From(entity string) Query {
	return Query{plan: New(entity)}
}

// Of wraps an existing plan.
func Of(p *Plan) Query { return Query{plan: p} }

// Plan returns the built plan.
func (q Query) Plan() *Plan { return q.plan }

func (q Query) add(s Step) Query { return Query{plan: q.plan.AddStep(s)} }

// Where adds a Filter step.
func (q Query) Where(pred Lambda) Query { return q.add(Filter{Predicate: pred}) }

// Select adds a Project step.
func (q Query) Select(sel Lambda) Query { return q.add(Project{Selector: sel}) }

// OrderBy adds a primary ascending sort.
func (q Query) OrderBy(key Lambda) Query { return q.add(Sort{Key: key}) }

// OrderByDescending adds a primary descending sort.
func (q Query) OrderByDescending(key Lambda) Query {
	return q.add(Sort{Key: key, Descending: true})
}

// ThenBy adds an ascending tie-breaker sort.
func (q Query) ThenBy(key Lambda) Query { return q.add(Sort{Key: key, Subsequent: true}) }

// ThenByDescending adds a descending tie-breaker sort.
func (q Query) ThenByDescending(key Lambda) Query {
	return q.add(Sort{Key: key, Descending: true, Subsequent: true})
}

// Skip adds a Skip step with a literal count.
func (q Query) Skip(n int) Query { return q.add(Skip{Count: Lit(n)}) }

// Take adds a Take step with a literal count.
func (q Query) Take(n int) Query { return q.add(Take{Count: Lit(n)}) }

// SkipParam adds a Skip step whose count is the named plan parameter.
func (q Query) SkipParam(name string) Query { return q.add(Skip{Count: P(name)}) }

// TakeParam adds a Take step whose count is the named plan parameter.
func (q Query) TakeParam(name string) Query { return q.add(Take{Count: P(name)}) }

// SelectMany adds a FlattenJoin emitting the inner elements.
func (q Query) SelectMany(collection Lambda) Query {
	return q.add(FlattenJoin{Collection: collection})
}

// SelectManyWith adds a FlattenJoin combining (outer, inner) with result.
func (q Query) SelectManyWith(collection, result Lambda) Query {
	return q.add(FlattenJoin{Collection: collection, Result: result})
}

// LeftJoin adds a LeftOuterJoin against inner.
func (q Query) LeftJoin(inner Query, outerKey, innerKey, result Lambda) Query {
	return q.add(LeftOuterJoin{Inner: inner.plan, OuterKey: outerKey, InnerKey: innerKey, Result: result})
}

// Include requests fix-up of a dotted relation path.
func (q Query) Include(path string) Query { return Query{plan: q.plan.Include(path)} }

func (q Query) terminal(t Terminal, arg []Lambda) *Plan {
	if len(arg) == 0 {
		return q.plan.WithTerminal(t, nil)
	}
	a := arg[0]
	return q.plan.WithTerminal(t, &a)
}

// Count ends the plan with Count and an optional predicate.
func (q Query) Count(pred ...Lambda) *Plan { return q.terminal(Count, pred) }

// LongCount ends the plan with LongCount and an optional predicate.
func (q Query) LongCount(pred ...Lambda) *Plan { return q.terminal(LongCount, pred) }

// Any ends the plan with Any and an optional predicate.
func (q Query) Any(pred ...Lambda) *Plan { return q.terminal(Any, pred) }

// All ends the plan with All.
func (q Query) All(pred Lambda) *Plan { return q.terminal(All, []Lambda{pred}) }

// First ends the plan with First and an optional predicate.
func (q Query) First(pred ...Lambda) *Plan { return q.terminal(First, pred) }

// FirstOrDefault ends the plan with FirstOrDefault and an optional predicate.
func (q Query) FirstOrDefault(pred ...Lambda) *Plan { return q.terminal(FirstOrDefault, pred) }

// Single ends the plan with Single and an optional predicate.
func (q Query) Single(pred ...Lambda) *Plan { return q.terminal(Single, pred) }

// SingleOrDefault ends the plan with SingleOrDefault and an optional predicate.
func (q Query) SingleOrDefault(pred ...Lambda) *Plan { return q.terminal(SingleOrDefault, pred) }

// Min ends the plan with Min and an optional selector.
func (q Query) Min(sel ...Lambda) *Plan { return q.terminal(Min, sel) }

// Max ends the plan with Max and an optional selector.
func (q Query) Max(sel ...Lambda) *Plan { return q.terminal(Max, sel) }

// Sum ends the plan with Sum and an optional selector.
func (q Query) Sum(sel ...Lambda) *Plan { return q.terminal(Sum, sel) }

// Average ends the plan with Average and an optional selector.
func (q Query) Average(sel ...Lambda) *Plan { return q.terminal(Average, sel) }
