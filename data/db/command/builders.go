package command

import (
	"sort"
	"strconv"
	"strings"

	dbsql "arcompat/data/db/sql"
	"arcompat/errors"
)

// Insert 生成 INSERT INTO {{table}} ([[a]], [[b]]) VALUES (:a, :b)，参数名取自列名
func (c *Command) Insert(table string, columns map[string]any) *Command {
	c.SetSQL("")
	cols := sortedKeys(columns)
	if err := c.checkTable(table, cols); err != nil {
		return c
	}
	if len(cols) == 0 {
		c.err = errors.NewError(errors.ErrCodeInvalidInput, "insert 缺少列")
		return c
	}

	quoted := make([]string, len(cols))
	holders := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = "[[" + col + "]]"
		holders[i] = ":" + col
		c.BindValue(col, columns[col])
	}
	c.sql = "INSERT INTO " + tableRef(table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(holders, ", ") + ")"
	return c
}

// Update 生成 UPDATE {{table}} SET [[a]] = :a WHERE [[k]] = :cond_k。
// 参数名由列名确定，同名列出现在多表语句中可能冲突。
func (c *Command) Update(table string, columns, condition map[string]any) *Command {
	c.SetSQL("")
	cols := sortedKeys(columns)
	keys := sortedKeys(condition)
	if err := c.checkTable(table, append(append([]string{}, cols...), keys...)); err != nil {
		return c
	}
	if len(cols) == 0 {
		c.err = errors.NewError(errors.ErrCodeInvalidInput, "update 缺少列")
		return c
	}

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = "[[" + col + "]] = :" + col
		c.BindValue(col, columns[col])
	}
	c.sql = "UPDATE " + tableRef(table) + " SET " + strings.Join(sets, ", ")

	if len(keys) > 0 {
		conds := make([]string, len(keys))
		for i, k := range keys {
			conds[i] = "[[" + k + "]] = :cond_" + k
			c.BindValue("cond_"+k, condition[k])
		}
		c.sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return c
}

// Delete 生成 DELETE FROM {{table}} WHERE [[k]] = :k
func (c *Command) Delete(table string, condition map[string]any) *Command {
	c.SetSQL("")
	keys := sortedKeys(condition)
	if err := c.checkTable(table, keys); err != nil {
		return c
	}

	c.sql = "DELETE FROM " + tableRef(table)
	if len(keys) > 0 {
		conds := make([]string, len(keys))
		for i, k := range keys {
			conds[i] = "[[" + k + "]] = :" + k
			c.BindValue(k, condition[k])
		}
		c.sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return c
}

// BatchInsert 多行插入，参数依次命名为 :param0、:param1 ...
func (c *Command) BatchInsert(table string, columns []string, rows [][]any) *Command {
	c.SetSQL("")
	if err := c.checkTable(table, columns); err != nil {
		return c
	}
	if len(columns) == 0 || len(rows) == 0 {
		c.err = errors.NewError(errors.ErrCodeInvalidInput, "batchInsert 缺少列或数据")
		return c
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = "[[" + col + "]]"
	}

	n := 0
	groups := make([]string, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			c.err = errors.Errorf(errors.ErrCodeInvalidInput,
				"第 %d 行的值数量(%d)与列数量(%d)不一致", i+1, len(row), len(columns))
			return c
		}
		holders := make([]string, len(row))
		for j, v := range row {
			name := "param" + strconv.Itoa(n)
			holders[j] = ":" + name
			c.BindValue(name, v)
			n++
		}
		groups[i] = "(" + strings.Join(holders, ", ") + ")"
	}
	c.sql = "INSERT INTO " + tableRef(table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES " + strings.Join(groups, ", ")
	return c
}

func (c *Command) checkTable(table string, cols []string) error {
	if !strings.HasPrefix(table, "{{") {
		if err := dbsql.CheckIdentifier("表名", table); err != nil {
			c.err = err
			return err
		}
	}
	for _, col := range cols {
		if err := dbsql.CheckIdentifier("列名", col); err != nil {
			c.err = err
			return err
		}
	}
	return nil
}

func tableRef(table string) string {
	if strings.HasPrefix(table, "{{") {
		return table
	}
	return "{{" + table + "}}"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
