package templates

import (
	"context"
	"fmt"
	"sort"
	"text/template/parse"
)

// Extract statically collects the top-level variable names referenced by a
// template body. Wrapped content is unwrapped first: extraction always
// operates on the leaf body, not the base scaffolding.
func Extract(content string) ([]string, error) {
	if IsWrapped(content) {
		content = Unwrap(content)
	}

	trees := make(map[string]*parse.Tree)
	t := parse.New("extract")
	t.Mode = parse.SkipFuncCheck | parse.ParseComments
	if _, err := t.Parse(content, "", "", trees); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	seen := make(map[string]struct{})
	for _, tree := range trees {
		if tree.Root != nil {
			collectVariables(tree.Root, seen)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ExtractAsync runs Extract off the calling goroutine. The caller suspends
// until the parse completes or ctx is done; concurrent work is not blocked
// meanwhile.
func ExtractAsync(ctx context.Context, content string) ([]string, error) {
	type result struct {
		names []string
		err   error
	}

	ch := make(chan result, 1)
	go func() {
		names, err := Extract(content)
		ch <- result{names: names, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.names, r.err
	}
}

// collectVariables walks the parse tree gathering the first identifier of
// every field reference ({{.user.name}} contributes "user").
func collectVariables(node parse.Node, seen map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, item := range n.Nodes {
			collectVariables(item, seen)
		}
	case *parse.ActionNode:
		collectPipe(n.Pipe, seen)
	case *parse.IfNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.TemplateNode:
		collectPipe(n.Pipe, seen)
	}
}

func collectBranch(n *parse.BranchNode, seen map[string]struct{}) {
	collectPipe(n.Pipe, seen)
	if n.List != nil {
		collectVariables(n.List, seen)
	}
	if n.ElseList != nil {
		collectVariables(n.ElseList, seen)
	}
}

func collectPipe(pipe *parse.PipeNode, seen map[string]struct{}) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if len(a.Ident) > 0 {
					seen[a.Ident[0]] = struct{}{}
				}
			case *parse.ChainNode:
				if inner, ok := a.Node.(*parse.PipeNode); ok {
					collectPipe(inner, seen)
				}
			case *parse.PipeNode:
				collectPipe(a, seen)
			}
		}
	}
}
