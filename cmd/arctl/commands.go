package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arcompat/data/activerecord/modelgen"
	"arcompat/data/db/command"
	"arcompat/data/db/connection"
	"arcompat/errors"
)

type pingCmd struct {
	app *app
}

func (c *pingCmd) Execute([]string) error {
	return c.app.withSession(func(ctx context.Context, reg *connection.Registry, name string) error {
		start := time.Now()
		db, err := reg.Resolve(ctx, name)
		if err != nil {
			return err
		}
		if err := db.Ping(ctx); err != nil {
			return errors.WrapError(err, errors.ErrCodeDatabase, "ping 失败").WithContext("connection", name)
		}
		driver := ""
		if cfg, ok := reg.Config(name); ok {
			driver = cfg.Driver
		}
		c.app.printf("%s\t%s\tok\t%s\n", name, driver, time.Since(start).Round(time.Microsecond))
		return nil
	})
}

type queryCmd struct {
	app    *app
	Params map[string]string `short:"p" long:"param" description:"命名参数 name=value，可重复" key-value-delimiter:"="`
}

func (c *queryCmd) Execute(args []string) error {
	sql, err := statement(args)
	if err != nil {
		return err
	}
	return c.app.withSession(func(ctx context.Context, reg *connection.Registry, name string) error {
		rows, err := command.For(reg, name, sql).BindValues(bindings(c.Params)).QueryAll(ctx)
		if err != nil {
			return err
		}
		return render(c.app.out, c.app.opts.Format, rows)
	})
}

type execCmd struct {
	app    *app
	Params map[string]string `short:"p" long:"param" description:"命名参数 name=value，可重复" key-value-delimiter:"="`
	As     string            `long:"as" description:"语句类型 insert|update|delete|other，默认按首个关键字推断"`
}

var kinds = map[string]command.Kind{
	"insert": command.KindInsert,
	"update": command.KindUpdate,
	"delete": command.KindDelete,
	"other":  command.KindOther,
}

func (c *execCmd) Execute(args []string) error {
	sql, err := statement(args)
	if err != nil {
		return err
	}
	kind := command.Sniff(sql)
	if c.As != "" {
		k, ok := kinds[strings.ToLower(c.As)]
		if !ok {
			return errors.Errorf(errors.ErrCodeInvalidInput, "未知语句类型 %q", c.As)
		}
		kind = k
	}

	return c.app.withSession(func(ctx context.Context, reg *connection.Registry, name string) error {
		n, err := command.For(reg, name, sql).BindValues(bindings(c.Params)).ExecuteAs(ctx, kind)
		if err != nil {
			return err
		}
		key := "affected"
		switch kind {
		case command.KindInsert:
			key = "last_insert_id"
		case command.KindOther:
			key = "ok"
		}
		return render(c.app.out, c.app.opts.Format, []map[string]any{{"kind": strings.ToLower(kind.String()), key: n}})
	})
}

type genModelCmd struct {
	app         *app
	Package     string `long:"package" description:"生成文件的包名" default:"models"`
	Var         string `long:"var" description:"模型变量名，默认由表名推导"`
	StripPrefix string `long:"strip-prefix" description:"推导变量名时去掉的表前缀"`
	Output      string `short:"o" long:"output" description:"输出目录，为空时写到标准输出"`
	Args        struct {
		Table string `positional-arg-name:"table" required:"yes"`
	} `positional-args:"yes"`
}

func (c *genModelCmd) Execute([]string) error {
	return c.app.withSession(func(ctx context.Context, reg *connection.Registry, name string) error {
		db, err := reg.Resolve(ctx, name)
		if err != nil {
			return err
		}
		table, err := modelgen.Inspect(ctx, db, c.Args.Table)
		if err != nil {
			return err
		}
		src, err := modelgen.Generate(table, modelgen.Options{
			Package:     c.Package,
			VarName:     c.Var,
			StripPrefix: c.StripPrefix,
		})
		if err != nil {
			return err
		}
		if c.Output == "" {
			_, err = c.app.out.Write(src)
			return err
		}

		if err := os.MkdirAll(c.Output, 0o755); err != nil {
			return errors.WrapError(err, errors.ErrCodeInternal, "创建输出目录失败").WithContext("dir", c.Output)
		}
		path := filepath.Join(c.Output, table.Name+".go")
		if err := os.WriteFile(path, src, 0o644); err != nil {
			return errors.WrapError(err, errors.ErrCodeInternal, "写入模型文件失败").WithContext("path", path)
		}
		c.app.printf("%s\n", path)
		return nil
	})
}

func statement(args []string) (string, error) {
	sql := strings.TrimSpace(strings.Join(args, " "))
	if sql == "" {
		return "", errors.NewError(errors.ErrCodeInvalidInput, "缺少 SQL 语句")
	}
	return sql, nil
}

func bindings(params map[string]string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
