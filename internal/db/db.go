// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"statdash/internal/config"
)

// SQLDriverName - имя, под которым драйвер зарегистрирован в database/sql.
func SQLDriverName(driver string) (string, error) {
	switch driver {
	case config.DriverPostgres:
		return "pgx", nil
	case config.DriverMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("неподдерживаемый драйвер БД %q", driver)
	}
}

// BuildDSN собирает строку подключения из компонентов или дополняет DATABASE_DSN.
func BuildDSN(dbCfg config.DatabaseConfig) (string, error) {
	switch dbCfg.Driver {
	case config.DriverPostgres:
		if dbCfg.DSN != "" {
			return dbCfg.DSN, nil
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(dbCfg.User, dbCfg.Password),
			Host:   net.JoinHostPort(dbCfg.Host, strconv.Itoa(dbCfg.Port)),
			Path:   "/" + dbCfg.DBName,
		}
		if dbCfg.SSLMode != "" {
			u.RawQuery = url.Values{"sslmode": {dbCfg.SSLMode}}.Encode()
		}
		return u.String(), nil

	case config.DriverMySQL:
		var mc *mysql.Config
		if dbCfg.DSN != "" {
			parsed, err := mysql.ParseDSN(dbCfg.DSN)
			if err != nil {
				return "", fmt.Errorf("некорректный DATABASE_DSN для MySQL: %w", err)
			}
			mc = parsed
		} else {
			mc = mysql.NewConfig()
			mc.User = dbCfg.User
			mc.Passwd = dbCfg.Password
			mc.Net = "tcp"
			mc.Addr = net.JoinHostPort(dbCfg.Host, strconv.Itoa(dbCfg.Port))
			mc.DBName = dbCfg.DBName
		}
		// DATE сканируется в time.Time только с parseTime.
		mc.ParseTime = true
		mc.Loc = time.UTC
		if mc.Params == nil {
			mc.Params = map[string]string{}
		}
		if _, ok := mc.Params["charset"]; !ok {
			mc.Params["charset"] = "utf8mb4"
		}
		return mc.FormatDSN(), nil
	}
	return "", fmt.Errorf("неподдерживаемый драйвер БД %q", dbCfg.Driver)
}

func safeDSN(dsn, password string) string {
	if password == "" {
		return dsn
	}
	return strings.ReplaceAll(dsn, password, "****")
}

// InitDB открывает пул соединений и проверяет доступность БД.
func InitDB(ctx context.Context, dbCfg config.DatabaseConfig) (*sql.DB, error) {
	driverName, err := SQLDriverName(dbCfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := BuildDSN(dbCfg)
	if err != nil {
		return nil, err
	}
	slog.Info("Подключение к БД", "driver", dbCfg.Driver, "dsn_for_connection", safeDSN(dsn, dbCfg.Password))

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия соединения с БД: %w", err)
	}

	conn.SetConnMaxLifetime(time.Duration(dbCfg.ConnMaxLifetimeMinutes) * time.Minute)
	conn.SetMaxOpenConns(dbCfg.MaxOpenConns)
	conn.SetMaxIdleConns(dbCfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(dbCfg.PingTimeoutSeconds)*time.Second)
	defer cancel()
	if err = conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ошибка подключения к БД (ping failed): %w", err)
	}
	slog.Info("Успешное подключение к БД.", "driver", dbCfg.Driver)
	return conn, nil
}

// Rebind переводит плейсхолдеры "?" в "$1, $2, ..." для PostgreSQL.
func Rebind(driver, query string) string {
	if driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
