package criteria

import (
	"bytes"
	"encoding/json"
	"fmt"

	ft "CriteriaManager/util/filter_translator"
	"CriteriaManager/util/query_error"
)

// Rule 规则树叶子节点
type Rule struct {
	// Type 声明的逻辑类型，可为空（以字段配置为准）
	Type     string      `json:"type"`
	Field    string      `json:"rule"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Group AND/OR 分组
type Group struct {
	Condition ft.Condition `json:"condition"`
	Children  []Node       `json:"children"`
}

// Node 规则或分组，二者恰有其一
type Node struct {
	Rule  *Rule
	Group *Group
}

// RuleNode 构造叶子节点
func RuleNode(field, fieldType, operator string, value interface{}) Node {
	return Node{Rule: &Rule{Type: fieldType, Field: field, Operator: operator, Value: value}}
}

// GroupNode 构造分组节点
func GroupNode(cond ft.Condition, children ...Node) Node {
	return Node{Group: &Group{Condition: cond, Children: children}}
}

// wire 持久化格式的并集：
// {type: rule, query: {type, rule, operator, value}}
// {type: rule, fieldType, fieldName, operator, operand|value}
// {condition, children}
type wire struct {
	Type      string            `json:"type"`
	Query     *Rule             `json:"query"`
	FieldType string            `json:"fieldType"`
	FieldName string            `json:"fieldName"`
	Operator  string            `json:"operator"`
	Operand   interface{}       `json:"operand"`
	Value     interface{}       `json:"value"`
	Condition string            `json:"condition"`
	Children  []json.RawMessage `json:"children"`
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var w wire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("decode rule node: %w", err)
	}

	switch {
	case w.Query != nil:
		n.Rule = w.Query
		if n.Rule.Type == "" {
			n.Rule.Type = w.FieldType
		}
		return nil
	case w.Type == "rule" || w.FieldName != "":
		value := w.Value
		if value == nil {
			value = w.Operand
		}
		n.Rule = &Rule{Type: w.FieldType, Field: w.FieldName, Operator: w.Operator, Value: value}
		return nil
	}

	cond, err := ft.ParseCondition(w.Condition)
	if err != nil {
		return err
	}
	g := &Group{Condition: cond, Children: make([]Node, 0, len(w.Children))}
	for i, raw := range w.Children {
		var child Node
		if err := json.Unmarshal(raw, &child); err != nil {
			return fmt.Errorf("children[%d]: %w", i, err)
		}
		g.Children = append(g.Children, child)
	}
	n.Group = g
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.Rule != nil {
		return json.Marshal(map[string]interface{}{"type": "rule", "query": n.Rule})
	}
	if n.Group != nil {
		return json.Marshal(n.Group)
	}
	return []byte("null"), nil
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	var p plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}

// Normalize 单条规则包装为 {and, [rule]}
func (n Node) Normalize() (*Group, error) {
	switch {
	case n.Group != nil:
		return n.Group, nil
	case n.Rule != nil:
		return &Group{Condition: ft.And, Children: []Node{n}}, nil
	}
	return nil, query_error.NewEmptyGroup("root")
}

// ParseRules 解析持久化的规则树
func ParseRules(data []byte) (*Group, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, query_error.NewEmptyGroup("root")
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, query_error.NewInvalidValue("rules", "", err)
	}
	return n.Normalize()
}

// Walk 深度优先遍历全部规则
func (g *Group) Walk(fn func(r *Rule)) {
	for _, c := range g.Children {
		if c.Rule != nil {
			fn(c.Rule)
		} else if c.Group != nil {
			c.Group.Walk(fn)
		}
	}
}
