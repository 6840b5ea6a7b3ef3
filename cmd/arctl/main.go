// arctl 对配置文件中的命名连接执行连通性检查与原始 SQL。
//
//	arctl -c db.yaml ping
//	arctl -c db.yaml -C stats query "SELECT * FROM {{%users}} WHERE age > :age" --param age=18
//	arctl -c db.yaml exec "UPDATE {{users}} SET status = 0 WHERE id = 3"
//	arctl -c db.yaml gen-model users -o ./models
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/jessevdk/go-flags"

	"arcompat/config"
	"arcompat/data/db/basic"
	"arcompat/data/db/connection"
	"arcompat/logging"
	"arcompat/validation"
)

// Options 全局参数
type Options struct {
	Config     string        `short:"c" long:"config" description:"连接配置文件" required:"true"`
	Connection string        `short:"C" long:"connection" description:"连接名，默认使用配置中的 default"`
	LogLevel   string        `long:"log-level" description:"日志级别，覆盖配置文件中的 logging.level"`
	Format     string        `short:"f" long:"format" description:"输出格式 table|json|yaml" default:"table"`
	Timeout    time.Duration `long:"timeout" description:"单条命令超时" default:"30s"`
}

var formats = []string{"table", "json", "yaml"}

type app struct {
	opts Options
	ctx  context.Context
	out  io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out io.Writer) int {
	a := &app{ctx: ctx, out: out}
	parser := flags.NewParser(&a.opts, flags.Default)
	parser.Name = "arctl"

	mustAdd(parser, "ping", "检查连接", "打开连接并执行 Ping", &pingCmd{app: a})
	mustAdd(parser, "query", "执行查询", "执行查询语句并输出结果行", &queryCmd{app: a})
	mustAdd(parser, "exec", "执行语句", "执行非查询语句并输出受影响行数或新主键", &execCmd{app: a})
	mustAdd(parser, "gen-model", "生成模型", "读取表结构并生成 activerecord.Define 声明", &genModelCmd{app: a})

	if _, err := parser.ParseArgs(args); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}
	return 0
}

func mustAdd(p *flags.Parser, name, short, long string, data any) {
	if _, err := p.AddCommand(name, short, long, data); err != nil {
		panic(err)
	}
}

// session 加载配置、初始化日志并注册全部连接
func (a *app) session() (*connection.Registry, string, error) {
	if err := validation.ValidateEnum(a.opts.Format, "format", formats); err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(a.opts.Config)
	if err != nil {
		return nil, "", err
	}

	levelName := cfg.Logging.Level
	if a.opts.LogLevel != "" {
		levelName = a.opts.LogLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, "", err
	}
	logging.SetLogger(logging.NewZapLogger(level))

	reg := connection.NewRegistry(basic.New)
	if err := reg.Configure(a.ctx, cfg); err != nil {
		_ = reg.Close()
		return nil, "", err
	}
	name := a.opts.Connection
	if name == "" {
		name = cfg.Default
	}
	return reg, name, nil
}

// withSession 在带超时的上下文中执行 fn，结束后关闭全部连接
func (a *app) withSession(fn func(ctx context.Context, reg *connection.Registry, name string) error) error {
	reg, name, err := a.session()
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	ctx := a.ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	if err := fn(ctx, reg, name); err != nil {
		logging.GetLogger().Error(ctx, "命令执行失败",
			logging.Component("arctl"), logging.String("connection", name), logging.Error(err))
		return err
	}
	return nil
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}
