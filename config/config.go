// Package config 加载命名数据库连接的 YAML 配置。
//
//	default: main
//	connections:
//	  main:
//	    driver: mysql
//	    host: 127.0.0.1
//	    database: shop
//	  stats:
//	    driver: sqlite
//	    database: /var/lib/app/stats.db
package config

import (
	"os"
	"sort"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	core "arcompat/data/db"
	"arcompat/errors"
)

// Config 连接配置文件
type Config struct {
	Default     string                           `yaml:"default" default:"default"`
	Connections map[string]core.ConnectionConfig `yaml:"connections"`
	Logging     Logging                          `yaml:"logging"`
}

// Logging 日志配置
type Logging struct {
	Level string `yaml:"level" default:"info"`
}

// Load 读取并解析配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "读取配置文件失败").
			WithContext("path", path)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容，填充默认值并校验
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "解析配置失败")
	}
	if err := defaults.Set(&c); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "设置默认值失败")
	}

	for name, conn := range c.Connections {
		filled, err := conn.WithDefaults()
		if err != nil {
			return nil, err
		}
		c.Connections[name] = filled
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate 校验每个连接描述符以及默认连接名
func (c *Config) Validate() error {
	for _, name := range c.Names() {
		if err := c.Connections[name].Validate(); err != nil {
			return errors.WrapError(err, errors.ErrCodeConfiguration, "连接配置无效").
				WithContext("connection", name)
		}
	}
	if len(c.Connections) > 0 {
		if _, ok := c.Connections[c.Default]; !ok {
			return errors.Errorf(errors.ErrCodeConfiguration, "默认连接 %q 未定义", c.Default)
		}
	}
	return nil
}

// Names 连接名（排序）
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Connections))
	for n := range c.Connections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
