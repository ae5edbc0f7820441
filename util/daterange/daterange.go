package daterange

import (
	"regexp"
	"strconv"
	"time"

	"CriteriaManager/util/query_error"

	"github.com/jinzhu/now"
)

// Range 闭区间 [Start, End]，End 为当天最后一纳秒
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains 判断时间点是否落在区间内（含两端）
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days 区间覆盖的自然日数量
func (r Range) Days() int {
	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}

var relativeDays = regexp.MustCompile(`^(last|next)_(\d+)_days$`)

// 固定关键字，用于前端下拉和校验
var keywords = []string{
	"today", "yesterday", "tomorrow", "next_day",
	"this_week", "last_week", "next_week",
	"this_month", "last_month", "next_month",
	"this_quarter", "last_quarter", "next_quarter",
	"this_year", "last_year", "next_year",
}

// Resolver 语义时间关键字解析器，无状态，可并发共享
type Resolver struct {
	WeekStartDay time.Weekday
}

// NewResolver 创建解析器，周起始日由配置决定
func NewResolver(weekStartDay time.Weekday) *Resolver {
	return &Resolver{WeekStartDay: weekStartDay}
}

// Default 周一为一周起始
var Default = NewResolver(time.Monday)

// Keywords 返回固定关键字（不含 last_N_days / next_N_days）
func Keywords() []string {
	out := make([]string, len(keywords))
	copy(out, keywords)
	return out
}

// IsKeyword 判断字符串能否被解析为时间区间
func IsKeyword(keyword string) bool {
	for _, k := range keywords {
		if k == keyword {
			return true
		}
	}
	return relativeDays.MatchString(keyword)
}

// Resolve 将关键字解析为相对 at 的闭区间。每次调用都重新计算，不缓存
func (r *Resolver) Resolve(keyword string, at time.Time) (Range, error) {
	n := (&now.Config{WeekStartDay: r.WeekStartDay}).With(at)

	switch keyword {
	case "today":
		return day(n.BeginningOfDay()), nil
	case "yesterday":
		return day(n.BeginningOfDay().AddDate(0, 0, -1)), nil
	case "tomorrow", "next_day":
		return day(n.BeginningOfDay().AddDate(0, 0, 1)), nil

	case "this_week":
		return week(n.BeginningOfWeek()), nil
	case "last_week":
		return week(n.BeginningOfWeek().AddDate(0, 0, -7)), nil
	case "next_week":
		return week(n.BeginningOfWeek().AddDate(0, 0, 7)), nil

	case "this_month":
		return month(n.BeginningOfMonth()), nil
	case "last_month":
		return month(n.BeginningOfMonth().AddDate(0, -1, 0)), nil
	case "next_month":
		return month(n.BeginningOfMonth().AddDate(0, 1, 0)), nil

	case "this_quarter":
		return quarter(n.BeginningOfQuarter()), nil
	case "last_quarter":
		return quarter(n.BeginningOfQuarter().AddDate(0, -3, 0)), nil
	case "next_quarter":
		return quarter(n.BeginningOfQuarter().AddDate(0, 3, 0)), nil

	case "this_year":
		return year(n.BeginningOfYear()), nil
	case "last_year":
		return year(n.BeginningOfYear().AddDate(-1, 0, 0)), nil
	case "next_year":
		return year(n.BeginningOfYear().AddDate(1, 0, 0)), nil
	}

	m := relativeDays.FindStringSubmatch(keyword)
	if m == nil {
		return Range{}, query_error.NewInvalidDateRangeKeyword(keyword)
	}
	days, err := strconv.Atoi(m[2])
	if err != nil || days > 36500 {
		return Range{}, query_error.NewInvalidDateRangeKeyword(keyword)
	}

	if m[1] == "last" {
		return Range{
			Start: n.BeginningOfDay().AddDate(0, 0, -days),
			End:   n.EndOfDay(),
		}, nil
	}
	end := n.BeginningOfDay().AddDate(0, 0, days)
	return Range{
		Start: n.BeginningOfDay(),
		End:   now.With(end).EndOfDay(),
	}, nil
}

// Resolve 使用默认解析器（周一起始）
func Resolve(keyword string, at time.Time) (Range, error) {
	return Default.Resolve(keyword, at)
}

// DayBounds 返回 t 所在自然日的闭区间
func DayBounds(t time.Time) Range {
	return day(now.With(t).BeginningOfDay())
}

func day(start time.Time) Range {
	return Range{Start: start, End: now.With(start).EndOfDay()}
}

func week(start time.Time) Range {
	return Range{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Nanosecond)}
}

func month(start time.Time) Range {
	return Range{Start: start, End: now.With(start).EndOfMonth()}
}

func quarter(start time.Time) Range {
	return Range{Start: start, End: now.With(start).EndOfQuarter()}
}

func year(start time.Time) Range {
	return Range{Start: start, End: now.With(start).EndOfYear()}
}
