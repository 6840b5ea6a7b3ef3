package connection

import (
	"context"

	"arcompat/config"
)

// Configure 注册配置文件中的全部连接并设置默认连接名，遇到第一个错误即返回
func (r *Registry) Configure(ctx context.Context, c *config.Config) error {
	if c == nil {
		return nil
	}
	for _, name := range c.Names() {
		if err := r.Register(ctx, name, c.Connections[name]); err != nil {
			return err
		}
	}
	r.SetDefault(c.Default)
	return nil
}
