package criteria_test

import (
	"encoding/json"
	"net/url"
	"testing"

	"CriteriaManager/criteria"
	ft "CriteriaManager/util/filter_translator"
	"CriteriaManager/util/query_error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storedTree = `{
  "condition": "and",
  "children": [
    {"type": "rule", "query": {"type": "text", "rule": "last_name", "operator": "equal", "value": "Doe"}},
    {"condition": "or", "children": [
      {"type": "rule", "query": {"type": "text", "rule": "first_name", "operator": "equal", "value": "John"}},
      {"type": "rule", "fieldType": "numeric", "fieldName": "score", "operator": "greater", "operand": 7}
    ]}
  ]
}`

func TestParseRules(t *testing.T) {
	tree, err := criteria.ParseRules([]byte(storedTree))
	require.NoError(t, err)

	assert.Equal(t, ft.And, tree.Condition)
	require.Len(t, tree.Children, 2)
	require.NotNil(t, tree.Children[0].Rule)
	assert.Equal(t, "last_name", tree.Children[0].Rule.Field)

	nested := tree.Children[1].Group
	require.NotNil(t, nested)
	assert.Equal(t, ft.Or, nested.Condition)
	require.Len(t, nested.Children, 2)

	flat := nested.Children[1].Rule
	require.NotNil(t, flat)
	assert.Equal(t, "score", flat.Field)
	assert.Equal(t, "numeric", flat.Type)
	assert.Equal(t, json.Number("7"), flat.Value)

	var fields []string
	tree.Walk(func(r *criteria.Rule) { fields = append(fields, r.Field) })
	assert.Equal(t, []string{"last_name", "first_name", "score"}, fields)
}

func TestParsedTreeExecutes(t *testing.T) {
	f := seed(t)

	c, err := criteria.RulesFromJSON([]byte(storedTree))
	require.NoError(t, err)
	assert.Equal(t, []string{"John"}, firstNames(find(t, f.db, c)))
}

func TestSingleRuleNormalisation(t *testing.T) {
	single, err := criteria.ParseRules([]byte(
		`{"type": "rule", "query": {"type": "text", "rule": "first_name", "operator": "equal", "value": "John"}}`))
	require.NoError(t, err)

	wrapped, err := criteria.ParseRules([]byte(`{"condition": "and", "children": [
		{"type": "rule", "query": {"type": "text", "rule": "first_name", "operator": "equal", "value": "John"}}
	]}`))
	require.NoError(t, err)

	assert.Equal(t, wrapped, single)
	assert.Equal(t, ft.And, single.Condition)
}

func TestMissingConditionDefaultsToAnd(t *testing.T) {
	tree, err := criteria.ParseRules([]byte(`{"children": [
		{"type": "rule", "query": {"rule": "first_name", "operator": "is_null"}}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, ft.And, tree.Condition)
}

func TestParseRulesErrors(t *testing.T) {
	cases := map[string]query_error.Kind{
		``:                                     query_error.EmptyGroup,
		`null`:                                 query_error.EmptyGroup,
		`{"condition": "xor", "children": []}`: query_error.InvalidValue,
		`{"condition": "and", "children": [`:   query_error.InvalidValue,
	}
	for input, kind := range cases {
		_, err := criteria.ParseRules([]byte(input))
		requireKind(t, err, kind)
	}

	tree, err := criteria.ParseRules([]byte(`{"condition": "or", "children": []}`))
	require.NoError(t, err)
	_, err = newPipeline().Compile(nil, criteria.Rules(tree))
	requireKind(t, err, query_error.EmptyGroup)
}

func TestRuleTreeMarshalIsCanonical(t *testing.T) {
	tree, err := criteria.ParseRules([]byte(storedTree))
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	again, err := criteria.ParseRules(data)
	require.NoError(t, err)
	assert.Equal(t, tree, again)
	assert.Contains(t, string(data), `"query":{"type":"numeric","rule":"score","operator":"greater","value":7}`)
}

// ========== 请求参数解码 ==========

func TestDecodeRequestParams(t *testing.T) {
	values := url.Values{
		"q":             {"first_name:John"},
		"search_fields": {"first_name:like;last_name"},
		"search_match":  {"and"},
		"with[]":        {"source", "deals"},
		"select":        {"first_name;email"},
		"order":         {"created_at|desc", "sources|name"},
		"take":          {"10"},
		"page":          {"3"},
	}
	p, err := criteria.DecodeRequestParams(values)
	require.NoError(t, err)

	assert.Equal(t, "first_name:John", p.Q)
	assert.Equal(t, "first_name:like;last_name", p.SearchFields)
	assert.Equal(t, "and", p.SearchMatch)
	assert.Equal(t, []string{"source", "deals"}, p.With.Items())
	assert.Equal(t, []string{"first_name", "email"}, p.Select.Items())
	assert.Equal(t, criteria.OrderList{{Field: "created_at|desc"}, {Field: "sources|name"}}, p.Order)
	require.NotNil(t, p.Take)
	assert.Equal(t, 10, *p.Take)
	assert.False(t, p.IsZero())

	empty, err := criteria.DecodeRequestParams(url.Values{})
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = criteria.DecodeRequestParams(url.Values{"take": {"many"}})
	assert.Error(t, err)
}

func TestRequestParamsJSON(t *testing.T) {
	var p criteria.RequestParams
	require.NoError(t, json.Unmarshal([]byte(`{
		"q": "John",
		"with": ["source", "company"],
		"select": "email;score",
		"order": [{"field": "created_at", "direction": "desc"}, "first_name|asc"],
		"take": 2
	}`), &p))

	assert.Equal(t, []string{"source", "company"}, p.With.Items())
	assert.Equal(t, []string{"email", "score"}, p.Select.Items())
	assert.Equal(t, criteria.OrderList{
		{Field: "created_at", Direction: "desc"},
		{Field: "first_name|asc"},
	}, p.Order)

	var single criteria.RequestParams
	require.NoError(t, json.Unmarshal([]byte(`{"order": "created_at|desc"}`), &single))
	assert.Equal(t, criteria.OrderList{{Field: "created_at|desc"}}, single.Order)

	f := seed(t)
	rows := find(t, f.db, criteria.Request(p))
	require.Len(t, rows, 2)
	assert.Equal(t, f.testJohn.ID, rows[0].ID)
	assert.Equal(t, f.johnDoe.ID, rows[1].ID)
	// 未选择的列保持零值，预加载所需的外键已补齐
	assert.Empty(t, rows[1].FirstName)
	assert.Equal(t, f.johnDoe.Email, rows[1].Email)
	require.NotNil(t, rows[1].Company)
	assert.Equal(t, "Acme", rows[1].Company.Name)
	require.NotNil(t, rows[1].Source)
	assert.Equal(t, "Referral", rows[1].Source.Name)
}
