package main

import (
	"fmt"
	"os"
	"path/filepath"

	"filesafe/shared/types"

	"gopkg.in/yaml.v3"
)

// Plan is a batch of operations read from YAML and committed as one
// transaction.
//
//	operations:
//	  - path: src/a.txt
//	    kind: create
//	    content: |
//	      hello
//	  - path: src/b.txt
//	    kind: update
//	    from: staged/b.txt
//	  - path: src/old.txt
//	    kind: delete
type Plan struct {
	Operations []PlanOperation `yaml:"operations"`
}

type PlanOperation struct {
	Path    string  `yaml:"path"`
	Kind    string  `yaml:"kind"`
	Content *string `yaml:"content,omitempty"`
	From    string  `yaml:"from,omitempty"`
}

// loadPlan reads the plan at path. Relative paths inside it resolve against
// the plan's directory.
func loadPlan(path string) ([]shared.FileOperation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	return parsePlan(data, filepath.Dir(path))
}

func parsePlan(data []byte, baseDir string) ([]shared.FileOperation, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if len(plan.Operations) == 0 {
		return nil, fmt.Errorf("plan has no operations")
	}

	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	ops := make([]shared.FileOperation, 0, len(plan.Operations))
	for i, po := range plan.Operations {
		if po.Path == "" {
			return nil, fmt.Errorf("operation %d: path is required", i+1)
		}
		target := resolve(po.Path)

		kind := shared.OperationKind(po.Kind)
		switch kind {
		case shared.OpDelete:
			ops = append(ops, shared.NewDelete(target))
			continue
		case shared.OpCreate, shared.OpUpdate:
		default:
			return nil, fmt.Errorf("operation %d: unknown kind %q", i+1, po.Kind)
		}

		var content []byte
		switch {
		case po.Content != nil && po.From != "":
			return nil, fmt.Errorf("operation %d: content and from are mutually exclusive", i+1)
		case po.Content != nil:
			content = []byte(*po.Content)
		case po.From != "":
			b, err := os.ReadFile(resolve(po.From))
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i+1, err)
			}
			content = b
		default:
			return nil, fmt.Errorf("operation %d: content or from is required", i+1)
		}

		if kind == shared.OpCreate {
			ops = append(ops, shared.NewCreate(target, content))
		} else {
			ops = append(ops, shared.NewUpdate(target, content))
		}
	}
	return ops, nil
}
