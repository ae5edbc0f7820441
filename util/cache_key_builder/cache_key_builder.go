package cache_key_builder

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// KeyBuilder 缓存键构建器接口
type KeyBuilder[T any] interface {
	// BuildKey 根据数据生成缓存键
	BuildKey(data *T) (string, error)
}

var placeholder = regexp.MustCompile(`\{([^}]+)\}`)

// TemplateKeyBuilder 基于模板的键构建器
// 模板形如 "criteria:filter:{id}" 或 "criteria:filters:{resource}:{owner_id}"
type TemplateKeyBuilder[T any] struct {
	template string
	fields   []string
}

// NewTemplateKeyBuilder 创建模板键构建器
func NewTemplateKeyBuilder[T any](template string) *TemplateKeyBuilder[T] {
	kb := &TemplateKeyBuilder[T]{template: template}
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		kb.fields = append(kb.fields, m[1])
	}
	return kb
}

// BuildKey 按字段名、json 标签或 gorm column 填充占位符，
// 找不到字段或指针为 nil 时返回错误
func (kb *TemplateKeyBuilder[T]) BuildKey(data *T) (string, error) {
	if data == nil {
		return "", fmt.Errorf("cache key %s: nil data", kb.template)
	}
	val := reflect.Indirect(reflect.ValueOf(data))
	if val.Kind() != reflect.Struct {
		return "", fmt.Errorf("cache key %s: %s is not a struct", kb.template, val.Type())
	}

	key := kb.template
	for _, path := range kb.fields {
		v, err := fieldValue(val, path)
		if err != nil {
			return "", fmt.Errorf("cache key %s: %w", kb.template, err)
		}
		key = strings.Replace(key, "{"+path+"}", v, 1)
	}
	return key, nil
}

// MustBuildKey 模板与类型在启动时确定，构建失败即编程错误
func (kb *TemplateKeyBuilder[T]) MustBuildKey(data *T) string {
	key, err := kb.BuildKey(data)
	if err != nil {
		panic(err)
	}
	return key
}

// fieldValue 支持 "owner.id" 这样的嵌套路径
func fieldValue(val reflect.Value, path string) (string, error) {
	current := val
	for _, part := range strings.Split(path, ".") {
		if current.Kind() == reflect.Ptr {
			if current.IsNil() {
				return "", fmt.Errorf("field %s is nil", path)
			}
			current = current.Elem()
		}
		if current.Kind() != reflect.Struct {
			return "", fmt.Errorf("field %s: %s is not a struct", path, current.Type())
		}
		field := findField(current, part)
		if !field.IsValid() {
			return "", fmt.Errorf("unknown field %s", path)
		}
		current = field
	}
	if current.Kind() == reflect.Ptr {
		if current.IsNil() {
			return "null", nil
		}
		current = current.Elem()
	}
	s, err := cast.ToStringE(current.Interface())
	if err != nil {
		return fmt.Sprintf("%v", current.Interface()), nil
	}
	return s, nil
}

// findField 字段名（大小写不敏感）、json 标签、gorm column 依次匹配
func findField(val reflect.Value, name string) reflect.Value {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		if strings.EqualFold(field.Name, name) {
			return val.Field(i)
		}
		if tag := strings.Split(field.Tag.Get("json"), ",")[0]; tag != "" && tag == name {
			return val.Field(i)
		}
		for _, opt := range strings.Split(field.Tag.Get("gorm"), ";") {
			if col, ok := strings.CutPrefix(opt, "column:"); ok && col == name {
				return val.Field(i)
			}
		}
	}
	return reflect.Value{}
}
