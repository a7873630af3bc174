package driver

import (
	"context"
	"encoding/json"
	"fmt"
)

// Evaluate runs expression in the page over the debugging channel and
// returns its value.
func (d *Driver) Evaluate(ctx context.Context, expression string) (any, error) {
	s, err := d.debug.Value(ctx)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"expression":    expression,
		"returnByValue": true,
	}
	result, err := s.SendDomainCommand(ctx, "Runtime", "evaluate", params)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}

	var response struct {
		Result struct {
			Type  string `json:"type"`
			Value any    `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails,omitempty"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation result: %w", err)
	}

	if exc := response.ExceptionDetails; exc != nil {
		msg := exc.Text
		if exc.Exception != nil && exc.Exception.Description != "" {
			msg = exc.Exception.Description
		}
		return nil, fmt.Errorf("javascript evaluation error: %s", msg)
	}
	return response.Result.Value, nil
}

// AXNode is one node of the page's accessibility tree.
type AXNode struct {
	Role      string    `json:"role"`
	Name      string    `json:"name,omitempty"`
	Level     int       `json:"level,omitempty"`
	Value     string    `json:"value,omitempty"`
	Focusable bool      `json:"focusable,omitempty"`
	Children  []*AXNode `json:"children"`
}

type axValue struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type axProperty struct {
	Name  string  `json:"name"`
	Value axValue `json:"value"`
}

type axRawNode struct {
	NodeID     string       `json:"nodeId"`
	Role       axValue      `json:"role"`
	Name       *axValue     `json:"name,omitempty"`
	Value      *axValue     `json:"value,omitempty"`
	Properties []axProperty `json:"properties,omitempty"`
	ChildIDs   []string     `json:"childIds,omitempty"`
	Ignored    bool         `json:"ignored"`
}

// AccessibilityTree returns the accessibility tree of the attached page,
// with ignored nodes left out.
func (d *Driver) AccessibilityTree(ctx context.Context) ([]*AXNode, error) {
	s, err := d.debug.Value(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.SendDomainCommand(ctx, "Accessibility", "getFullAXTree", struct{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to get accessibility tree: %w", err)
	}

	var response struct {
		Nodes []axRawNode `json:"nodes"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return nil, fmt.Errorf("failed to parse accessibility tree: %w", err)
	}
	return buildAXForest(response.Nodes), nil
}

// buildAXForest links raw nodes into trees rooted at nodes nobody lists as
// a child.
func buildAXForest(nodes []axRawNode) []*AXNode {
	byID := make(map[string]*axRawNode, len(nodes))
	children := make(map[string]bool)
	for i := range nodes {
		byID[nodes[i].NodeID] = &nodes[i]
		for _, id := range nodes[i].ChildIDs {
			children[id] = true
		}
	}

	roots := []*AXNode{}
	for i := range nodes {
		if !children[nodes[i].NodeID] && !nodes[i].Ignored {
			roots = append(roots, buildAXNode(&nodes[i], byID))
		}
	}
	if len(roots) == 0 {
		for i := range nodes {
			if !nodes[i].Ignored {
				roots = append(roots, buildAXNode(&nodes[i], byID))
				break
			}
		}
	}
	return roots
}

func buildAXNode(raw *axRawNode, byID map[string]*axRawNode) *AXNode {
	node := &AXNode{
		Role:     axString(raw.Role),
		Children: []*AXNode{},
	}
	if raw.Name != nil {
		node.Name = axString(*raw.Name)
	}
	if raw.Value != nil {
		node.Value = axString(*raw.Value)
	}

	for _, prop := range raw.Properties {
		switch prop.Name {
		case "level":
			if v, ok := prop.Value.Value.(float64); ok {
				node.Level = int(v)
			}
		case "focusable":
			if v, ok := prop.Value.Value.(bool); ok {
				node.Focusable = v
			}
		}
	}

	for _, id := range raw.ChildIDs {
		child, ok := byID[id]
		if !ok || child.Ignored {
			continue
		}
		node.Children = append(node.Children, buildAXNode(child, byID))
	}
	return node
}

func axString(v axValue) string {
	if s, ok := v.Value.(string); ok {
		return s
	}
	if v.Value == nil {
		return ""
	}
	return fmt.Sprint(v.Value)
}
