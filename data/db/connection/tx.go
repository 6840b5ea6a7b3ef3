package connection

import (
	"context"
	"database/sql"

	core "arcompat/data/db"
	"arcompat/errors"
	"arcompat/logging"
)

type txKey struct {
	registry *Registry
	name     string
}

// WithTx 将事务绑定到 ctx；同一 ctx 下对该连接名的解析都会返回此事务
func (r *Registry) WithTx(ctx context.Context, name string, tx core.ITransaction) context.Context {
	return context.WithValue(ctx, txKey{registry: r, name: r.normalize(name)}, tx)
}

// TxFromContext 返回 ctx 中绑定到该连接名的事务
func (r *Registry) TxFromContext(ctx context.Context, name string) (core.ITransaction, bool) {
	tx := txFromContext(ctx, r, r.normalize(name))
	return tx, tx != nil
}

func txFromContext(ctx context.Context, r *Registry, name string) core.ITransaction {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txKey{registry: r, name: name}).(core.ITransaction)
	return tx
}

// Begin 在指定连接上开启事务
func (r *Registry) Begin(ctx context.Context, name string, opts *sql.TxOptions) (core.ITransaction, error) {
	if _, ok := r.TxFromContext(ctx, name); ok {
		return nil, errors.NewError(errors.ErrCodeTransaction, "连接上已有进行中的事务").
			WithContext("connection", r.normalize(name))
	}
	handle, err := r.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	tx, err := handle.BeginTx(ctx, opts)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeTransaction, "开启事务失败").
			WithContext("connection", r.normalize(name))
	}
	return tx, nil
}

// Transaction 在指定连接的事务中执行 fn：fn 返回 error 或 panic 时回滚，否则提交。
//
// fn 收到的 ctx 已绑定事务，经由该 ctx 解析同名连接的查询都会落在事务内。
// 多个连接各自独立提交，不保证整体原子性。
func (r *Registry) Transaction(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	if _, ok := r.TxFromContext(ctx, name); ok {
		// 已在同一连接的事务中，直接复用
		return fn(ctx)
	}

	tx, err := r.Begin(ctx, name, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(r.WithTx(ctx, name, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log().Error(ctx, "事务回滚失败",
				logging.String("connection", r.normalize(name)),
				logging.Error(rbErr))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.WrapError(err, errors.ErrCodeTransaction, "提交事务失败").
			WithContext("connection", r.normalize(name))
	}
	return nil
}
