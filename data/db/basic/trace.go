package basic

import (
	"context"
	"time"

	"arcompat/logging"
)

// trace 以 Debug 级别记录执行的 SQL 与耗时
func trace(ctx context.Context, op, query string, args []any, start time.Time, err error) {
	fields := []logging.Field{
		logging.Component("db"),
		logging.String("op", op),
		logging.String("sql", query),
		logging.Int("args", len(args)),
		logging.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, logging.Error(err))
	}
	logging.GetLogger().Debug(ctx, "执行SQL", fields...)
}
