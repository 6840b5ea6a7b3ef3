package db

import (
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"

	"arcompat/errors"
)

// 支持的驱动类型
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultConnectionName 未指定连接名时使用的名称
const DefaultConnectionName = "default"

// ConnectionConfig 命名连接描述符
type ConnectionConfig struct {
	Driver    string `yaml:"driver" default:"sqlite"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Charset   string `yaml:"charset" default:"utf8mb4"`
	Collation string `yaml:"collation"`

	// Prefix 表名前缀，作用于 {{%table}} 占位与模型表名
	Prefix string `yaml:"prefix"`

	// 连接池配置（由 database/sql 执行）
	MaxOpenConns    int           `yaml:"max_open_conns" default:"16"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"4"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" default:"5m"`

	Options Options `yaml:"options"`
}

// Options 驱动相关选项
type Options struct {
	// Timeout 连接超时；sqlite 下映射为 busy_timeout
	Timeout time.Duration `yaml:"timeout" default:"5s"`
	// Strict mysql 严格模式（sql_mode=TRADITIONAL）
	Strict bool `yaml:"strict"`
	// TLSMode mysql: true/false/skip-verify/preferred；postgres: sslmode
	TLSMode string `yaml:"tls_mode"`
	// ReadHosts/WriteHosts 读写分离主机列表，打开连接时使用 WriteHosts[0]
	ReadHosts  []string `yaml:"read_hosts"`
	WriteHosts []string `yaml:"write_hosts"`
}

// NormalizeDriver 将驱动别名统一为 DriverMySQL / DriverPostgres / DriverSQLite
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "mariadb":
		return DriverMySQL
	case "postgres", "postgresql", "pgsql", "pgx":
		return DriverPostgres
	case "sqlite", "sqlite3", "":
		return DriverSQLite
	}
	return strings.ToLower(strings.TrimSpace(driver))
}

// WithDefaults 返回填充了默认值的副本
func (c ConnectionConfig) WithDefaults() (ConnectionConfig, error) {
	out := c
	if err := defaults.Set(&out); err != nil {
		return c, errors.WrapError(err, errors.ErrCodeConfiguration, "设置连接默认值失败")
	}
	out.Driver = NormalizeDriver(out.Driver)
	return out, nil
}

// Validate 校验描述符必填字段
func (c ConnectionConfig) Validate() error {
	switch NormalizeDriver(c.Driver) {
	case DriverSQLite:
		if c.Database == "" {
			return errors.NewError(errors.ErrCodeConfiguration, "sqlite 连接缺少 database")
		}
	case DriverMySQL, DriverPostgres:
		if c.Host == "" && len(c.Options.WriteHosts) == 0 {
			return errors.NewError(errors.ErrCodeConfiguration, "连接缺少 host").
				WithContext("driver", c.Driver)
		}
		if c.Database == "" {
			return errors.NewError(errors.ErrCodeConfiguration, "连接缺少 database").
				WithContext("driver", c.Driver)
		}
	default:
		return errors.Errorf(errors.ErrCodeConfiguration, "不支持的驱动: %s", c.Driver)
	}
	return nil
}

// Equal 判断两个描述符是否完全一致
func (c ConnectionConfig) Equal(other ConnectionConfig) bool {
	return reflect.DeepEqual(c, other)
}

// WriteHost 返回用于建立写连接的主机
func (c ConnectionConfig) WriteHost() string {
	if len(c.Options.WriteHosts) > 0 {
		return c.Options.WriteHosts[0]
	}
	return c.Host
}
