package db

import (
	"github.com/jmoiron/sqlx"
)

// ScanMaps 读取结果集全部行并关闭 rows。
//
// 返回列顺序与行数据；[]byte 值统一转换为 string。
func ScanMaps(rows IRows) ([]string, []map[string]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []map[string]any
	for rows.Next() {
		m := make(map[string]any, len(cols))
		if err := sqlx.MapScan(rows, m); err != nil {
			return nil, nil, err
		}
		normalize(m)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

// ScanColumn 读取每行第一列
func ScanColumn(rows IRows) ([]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}

	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}

	var out []any
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, NormalizeValue(vals[0]))
	}
	return out, rows.Err()
}

// NormalizeValue 将驱动返回的 []byte 转为 string
func NormalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func normalize(m map[string]any) {
	for k, v := range m {
		m[k] = NormalizeValue(v)
	}
}
