package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/tabula/internal/schema"
)

// LoadSchema loads CUE schema files from path (a .cue file or a directory
// of them) and compiles every entry under `entities` into a finalized model.
func LoadSchema(path string) (*schema.Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	ctx := cuecontext.New()
	var value cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, fmt.Errorf("schema: no CUE instances in %s", path)
		}
		if err := instances[0].Err; err != nil {
			return nil, fmt.Errorf("schema: loading %s: %w", path, err)
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		value = ctx.CompileBytes(src, cue.Filename(filepath.Base(path)))
	}
	return CompileSchema(value)
}

// CompileSchemaString compiles CUE source text into a finalized model.
func CompileSchemaString(src string) (*schema.Model, error) {
	return CompileSchema(cuecontext.New().CompileString(src))
}

// CompileSchema compiles the `entities` struct of a built CUE value.
func CompileSchema(value cue.Value) (*schema.Model, error) {
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	entities := value.LookupPath(cue.ParsePath("entities"))
	if !entities.Exists() {
		return nil, &CompileError{Field: "entities", Message: "no entities declared", Pos: value.Pos()}
	}
	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	model := schema.NewModel()
	for iter.Next() {
		d, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, err
		}
		if err := model.Register(d); err != nil {
			return nil, err
		}
	}
	if err := model.Finalize(); err != nil {
		return nil, err
	}
	return model, nil
}
