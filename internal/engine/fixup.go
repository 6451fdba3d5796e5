package engine

import (
	"strings"

	"github.com/roach88/tabula/internal/schema"
)

// include is one compiled include directive: a navigation to populate and
// the directives nested beneath it.
type include struct {
	nav      *navigation
	children []*include
}

// compileIncludes resolves dotted include paths against root. Paths that
// share a prefix share directives, so "Posts" and "Posts.Comments" load
// Posts once.
func (e *Engine) compileIncludes(root *schema.Descriptor, paths []string) ([]*include, error) {
	var top []*include
	for _, path := range paths {
		parts := strings.Split(path, ".")
		if len(parts) > e.maxIncludeDepth {
			return nil, notSupported("include %q is deeper than %d", path, e.maxIncludeDepth)
		}
		level := &top
		owner := root
		for _, name := range parts {
			if _, ok := owner.Relation(name); !ok {
				return nil, notSupported("include %q: %s has no relation %q", path, owner.Name, name).WithEntity(owner.Name)
			}
			var node *include
			for _, existing := range *level {
				if existing.nav.rel.Name == name {
					node = existing
					break
				}
			}
			if node == nil {
				nav, err := e.navigation(owner, name)
				if err != nil {
					return nil, err
				}
				node = &include{nav: nav}
				*level = append(*level, node)
			}
			level = &node.children
			owner = node.nav.target
		}
	}
	return top, nil
}

// fixup applies the program's includes to every root-type entity in v,
// looking inside tuples and collections.
func (p *Program) fixup(x *execCtx, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case *Tuple:
		for _, fv := range t.values {
			if err := p.fixup(x, fv); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, item := range t {
			if err := p.fixup(x, item); err != nil {
				return err
			}
		}
		return nil
	}
	if !p.root.Accessor.Owns(v) {
		return nil
	}
	return applyIncludes(x, v, p.includes)
}

func applyIncludes(x *execCtx, owner any, incs []*include) error {
	for _, inc := range incs {
		targets, err := inc.populate(x, owner)
		if err != nil {
			return err
		}
		if len(inc.children) == 0 {
			continue
		}
		for _, target := range targets {
			if err := applyIncludes(x, target, inc.children); err != nil {
				return err
			}
		}
	}
	return nil
}

// populate loads the navigation onto owner unless it is already loaded,
// sets the inverse on each target and returns the targets.
func (inc *include) populate(x *execCtx, owner any) ([]any, error) {
	nav := inc.nav
	identity := x.mat.Identity()
	if identity.IsLoaded(owner, nav.rel.Name) {
		return nav.current(owner)
	}

	items, err := nav.load(x, owner)
	if err != nil {
		return nil, err
	}
	acc := nav.owner.Accessor
	if nav.rel.Collection {
		if err := acc.SetCollection(owner, nav.rel, items); err != nil {
			return nil, err
		}
	} else {
		if len(items) > 1 {
			return nil, errManyElements("include " + nav.owner.Name + "." + nav.rel.Name)
		}
		var target any
		if len(items) == 1 {
			target = items[0]
		}
		if err := acc.SetReference(owner, nav.rel, target); err != nil {
			return nil, err
		}
	}
	for _, item := range items {
		if err := nav.setInverse(item, owner); err != nil {
			return nil, err
		}
	}
	identity.MarkLoaded(owner, nav.rel.Name)
	return items, nil
}
