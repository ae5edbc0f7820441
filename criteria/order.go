package criteria

import (
	"fmt"
	"regexp"
	"strings"

	"CriteriaManager/resource"
	"CriteriaManager/util/query_error"

	"github.com/jinzhu/inflection"
	"gorm.io/gorm/clause"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// parseDirection 空方向为升序
func parseDirection(spec, dir string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
		return false, nil
	case "desc":
		return true, nil
	}
	return false, query_error.NewInvalidOrderSpec(spec, fmt.Sprintf("unknown direction %q", dir))
}

func isDirection(s string) bool {
	switch strings.ToLower(s) {
	case "asc", "desc":
		return true
	}
	return false
}

// parseOrder 解析排序项，支持：
//
//	column[|direction]
//	relation.column[|direction]
//	table[:foreign_key[,owner_key]]|column[|direction]
//
// 关联形式只生成 join 描述，别名在管道合并 join 时确定
func parseOrder(res *resource.Config, o OrderParam) (OrderBy, error) {
	spec := strings.TrimSpace(o.Field)
	if spec == "" {
		return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "empty order field")
	}

	parts := strings.Split(spec, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	dir := o.Direction
	if len(parts) > 1 && isDirection(parts[len(parts)-1]) {
		if dir == "" {
			dir = parts[len(parts)-1]
		}
		parts = parts[:len(parts)-1]
	} else if len(parts) == 2 && parts[1] == "" {
		// column| 视为缺省方向；table| 缺少列，交给 joinedOrder 报错
		if _, ok := res.OrderColumn(parts[0]); ok || strings.Contains(parts[0], ".") {
			parts = parts[:1]
		}
	}
	desc, err := parseDirection(spec, dir)
	if err != nil {
		return OrderBy{}, err
	}

	switch len(parts) {
	case 1:
		return plainOrder(res, spec, parts[0], desc)
	case 2:
		return joinedOrder(res, spec, parts[0], parts[1], desc)
	}
	return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "too many segments")
}

func plainOrder(res *resource.Config, spec, name string, desc bool) (OrderBy, error) {
	if name == "" {
		return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "missing column")
	}
	relName, col, dotted := strings.Cut(name, ".")
	if !dotted {
		column, ok := res.OrderColumn(name)
		if !ok {
			return OrderBy{}, query_error.NewUnknownField(name)
		}
		return OrderBy{Table: res.Table(), Column: column, Desc: desc}, nil
	}

	rel, ok := res.Relation(relName)
	if !ok {
		return OrderBy{}, query_error.NewUnknownField(name)
	}
	if rel.Kind != resource.BelongsTo {
		return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "ordering requires a belongs-to relation")
	}
	if f, found := rel.Field(col); found {
		col = f.Column
	}
	if !identifier.MatchString(col) {
		return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "invalid column")
	}
	j := relationJoin(res.Table(), rel)
	return OrderBy{Column: col, Desc: desc, Join: &j}, nil
}

func joinedOrder(res *resource.Config, spec, tablePart, col string, desc bool) (OrderBy, error) {
	if col == "" {
		return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "missing column")
	}
	if !identifier.MatchString(col) {
		return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "invalid column")
	}

	table, keys, _ := strings.Cut(tablePart, ":")
	if !identifier.MatchString(table) {
		return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "invalid table")
	}
	var fk, owner string
	if keys != "" {
		fk, owner, _ = strings.Cut(keys, ",")
		fk, owner = strings.TrimSpace(fk), strings.TrimSpace(owner)
		if !identifier.MatchString(fk) || (owner != "" && !identifier.MatchString(owner)) {
			return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "invalid join keys")
		}
	}

	base := res.Table()
	rel, ok := res.Relation(table)
	if ok && rel.Kind != resource.BelongsTo {
		return OrderBy{}, query_error.NewInvalidOrderSpec(spec, "ordering requires a belongs-to relation")
	}
	if !ok {
		rel, ok = res.RelationByTable(table)
	}

	var j Join
	if ok {
		j = relationJoin(base, rel)
		if fk != "" {
			j.Left.Name = fk
		}
		if owner != "" {
			j.Right.Name = owner
		}
	} else {
		if fk == "" {
			fk = inflection.Singular(table) + "_id"
		}
		if owner == "" {
			owner = "id"
		}
		j = Join{
			Table: table,
			Left:  clause.Column{Table: base, Name: fk},
			Right: clause.Column{Table: table, Name: owner},
		}
	}
	if !res.IsSelectable(j.Left.Name) {
		return OrderBy{}, query_error.NewInvalidOrderSpec(spec, fmt.Sprintf("foreign key %s is not a declared column", j.Left.Name))
	}
	return OrderBy{Column: col, Desc: desc, Join: &j}, nil
}
