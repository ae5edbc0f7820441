package criteria

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/schema"
)

// List 分号分隔或数组形式的列表参数
type List []string

// Items 展开分号分隔项，去空白、去重
func (l List) Items() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(l))
	for _, raw := range l {
		for _, item := range strings.Split(raw, ";") {
			item = strings.TrimSpace(item)
			if item != "" && !seen[item] {
				seen[item] = true
				out = append(out, item)
			}
		}
	}
	return out
}

func (l *List) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = List{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*l = items
	return nil
}

// OrderParam 单个排序项。Field 为 column、relation.column 或 table[:fk[,owner]]|column
type OrderParam struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// UnmarshalText 解析 field|direction 文本形式
func (o *OrderParam) UnmarshalText(text []byte) error {
	*o = OrderParam{Field: string(text)}
	return nil
}

func (o *OrderParam) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*o = OrderParam{Field: s}
		return nil
	}
	type plain OrderParam
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("expected order string or {field, direction}: %w", err)
	}
	*o = OrderParam(p)
	return nil
}

// OrderList 单个排序项或排序项数组
type OrderList []OrderParam

func (l *OrderList) UnmarshalJSON(data []byte) error {
	var one OrderParam
	if err := json.Unmarshal(data, &one); err == nil {
		*l = OrderList{one}
		return nil
	}
	var many []OrderParam
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// RequestParams 临时检索参数
type RequestParams struct {
	Q            string    `json:"q" schema:"q"`
	SearchFields string    `json:"search_fields" schema:"search_fields"`
	SearchMatch  string    `json:"search_match" schema:"search_match"`
	With         List      `json:"with" schema:"with"`
	Select       List      `json:"select" schema:"select"`
	Order        OrderList `json:"order" schema:"-"`
	Take         *int      `json:"take" schema:"take"`
}

// IsZero 没有任何检索参数
func (p RequestParams) IsZero() bool {
	return p.Q == "" && p.SearchFields == "" && p.SearchMatch == "" &&
		len(p.With) == 0 && len(p.Select) == 0 && len(p.Order) == 0 && p.Take == nil
}

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.ZeroEmpty(false)
	return d
}

// NormalizeValues 兼容 with[]=a 这类数组写法
func NormalizeValues(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, v := range values {
		key := strings.TrimSuffix(k, "[]")
		out[key] = append(out[key], v...)
	}
	return out
}

// DecodeRequestParams 从查询字符串解码检索参数
func DecodeRequestParams(values url.Values) (RequestParams, error) {
	var p RequestParams
	values = NormalizeValues(values)
	if err := DecodeValues(&p, values); err != nil {
		return RequestParams{}, err
	}
	// 结构体切片无法由 schema 以平铺键解码，逐项处理
	for _, raw := range values["order"] {
		for _, item := range strings.Split(raw, ";") {
			if item = strings.TrimSpace(item); item != "" {
				p.Order = append(p.Order, OrderParam{Field: item})
			}
		}
	}
	return p, nil
}

// DecodeValues 使用同一解码器解码任意带 schema 标签的结构体
func DecodeValues(dst interface{}, values url.Values) error {
	if err := decoder.Decode(dst, NormalizeValues(values)); err != nil {
		return fmt.Errorf("decode query parameters: %w", err)
	}
	return nil
}
