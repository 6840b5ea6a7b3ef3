package basic

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	core "arcompat/data/db"
)

// MySQLDSN 生成 go-sql-driver/mysql 的 DSN
func MySQLDSN(cfg core.ConnectionConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = hostPort(cfg.WriteHost(), cfg.Port, 3306)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Timeout = cfg.Options.Timeout
	mc.Collation = cfg.Collation

	mc.Params = map[string]string{}
	if cfg.Charset != "" {
		mc.Params["charset"] = cfg.Charset
	}
	if cfg.Options.Strict {
		mc.Params["sql_mode"] = "'TRADITIONAL'"
	}
	if cfg.Options.TLSMode != "" {
		mc.TLSConfig = cfg.Options.TLSMode
	}
	return mc.FormatDSN()
}

// PostgresDSN 生成 pgx 可解析的 keyword/value 连接串
func PostgresDSN(cfg core.ConnectionConfig) string {
	host, port := cfg.WriteHost(), cfg.Port
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	if port == 0 {
		port = 5432
	}

	parts := []string{
		"host=" + pgQuote(host),
		"port=" + strconv.Itoa(port),
		"dbname=" + pgQuote(cfg.Database),
	}
	if cfg.Username != "" {
		parts = append(parts, "user="+pgQuote(cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+pgQuote(cfg.Password))
	}
	if cfg.Options.TLSMode != "" {
		parts = append(parts, "sslmode="+pgQuote(cfg.Options.TLSMode))
	}
	if secs := int(cfg.Options.Timeout.Seconds()); secs > 0 {
		parts = append(parts, "connect_timeout="+strconv.Itoa(secs))
	}
	if cfg.Charset != "" && !strings.HasPrefix(strings.ToLower(cfg.Charset), "utf8mb") {
		parts = append(parts, "client_encoding="+pgQuote(cfg.Charset))
	}
	return strings.Join(parts, " ")
}

// SQLiteDSN 生成 modernc.org/sqlite 的 DSN，Timeout 映射为 busy_timeout
func SQLiteDSN(cfg core.ConnectionConfig) string {
	dsn := cfg.Database
	if ms := cfg.Options.Timeout.Milliseconds(); ms > 0 && !strings.Contains(dsn, "busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(" + strconv.FormatInt(ms, 10) + ")"
	}
	return dsn
}

func hostPort(host string, port, fallback int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	if port == 0 {
		port = fallback
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func pgQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return fmt.Sprintf("'%s'", v)
}
