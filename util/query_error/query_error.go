package query_error

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 调用方错误类型
type Kind string

const (
	RejectedSearchFields    Kind = "rejected_search_fields"
	UnknownField            Kind = "unknown_field"
	IllegalOperator         Kind = "illegal_operator"
	EmptyGroup              Kind = "empty_group"
	InvalidDateRangeKeyword Kind = "invalid_date_range_keyword"
	InvalidOrderSpec        Kind = "invalid_order_spec"
	InvalidValue            Kind = "invalid_value"
	UndeclaredRelation      Kind = "undeclared_relation"
	UndeclaredColumn        Kind = "undeclared_column"
)

// Error 查询构建阶段产生的调用方错误，在执行任何查询之前返回
type Error struct {
	Kind     Kind
	Field    string
	Operator string
	Value    string
	// Accepted 资源声明的可接受字段（按声明顺序）
	Accepted []string
	Message  string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

// Is 按 Kind 比较，便于 errors.Is(err, &Error{Kind: ...})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 返回错误链中的调用方错误类型
func KindOf(err error) (Kind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return "", false
}

// IsCallerError 是否为调用方错误（应映射为 4xx）
func IsCallerError(err error) bool {
	_, ok := KindOf(err)
	return ok
}

// ========== 构造函数 ==========

func NewRejectedSearchFields(requested, accepted []string) *Error {
	return &Error{
		Kind:     RejectedSearchFields,
		Field:    strings.Join(requested, ";"),
		Accepted: accepted,
		Message: fmt.Sprintf("none of the requested search fields are accepted, accepted fields: %s",
			strings.Join(accepted, ", ")),
	}
}

func NewUnknownField(field string) *Error {
	return &Error{
		Kind:    UnknownField,
		Field:   field,
		Message: fmt.Sprintf("unknown field: %s", field),
	}
}

func NewIllegalOperator(field, fieldType, operator string) *Error {
	return &Error{
		Kind:     IllegalOperator,
		Field:    field,
		Operator: operator,
		Message:  fmt.Sprintf("operator %q is not allowed for %s field %q", operator, fieldType, field),
	}
}

func NewEmptyGroup(path string) *Error {
	return &Error{
		Kind:    EmptyGroup,
		Field:   path,
		Message: fmt.Sprintf("rule group %s has no children", path),
	}
}

func NewInvalidDateRangeKeyword(keyword string) *Error {
	return &Error{
		Kind:    InvalidDateRangeKeyword,
		Value:   keyword,
		Message: fmt.Sprintf("invalid date range keyword: %s", keyword),
	}
}

func NewInvalidOrderSpec(spec, reason string) *Error {
	return &Error{
		Kind:    InvalidOrderSpec,
		Value:   spec,
		Message: fmt.Sprintf("invalid order %q: %s", spec, reason),
	}
}

func NewInvalidValue(field, operator string, cause error) *Error {
	return &Error{
		Kind:     InvalidValue,
		Field:    field,
		Operator: operator,
		Message:  fmt.Sprintf("invalid value for %s %s: %v", field, operator, cause),
	}
}

func NewUndeclaredRelation(name string, accepted []string) *Error {
	return &Error{
		Kind:     UndeclaredRelation,
		Field:    name,
		Accepted: accepted,
		Message:  fmt.Sprintf("relation %q cannot be loaded, accepted relations: %s", name, strings.Join(accepted, ", ")),
	}
}

func NewUndeclaredColumn(name string, accepted []string) *Error {
	return &Error{
		Kind:     UndeclaredColumn,
		Field:    name,
		Accepted: accepted,
		Message:  fmt.Sprintf("column %q cannot be selected, accepted columns: %s", name, strings.Join(accepted, ", ")),
	}
}
