package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	APP_PORT                 = "APP_PORT"
	APP_HOST                 = "APP_HOST"
	DB_HOST                  = "DB_HOST"
	DB_NAME                  = "DB_NAME"
	DB_USERNAME              = "DB_USERNAME"
	DB_PASS                  = "DB_PASS"
	DB_PORT                  = "DB_PORT"
	DB_CONN_MAX_LIFE_MINUTES = "DB_CONN_MAX_LIFE_MINUTES"
	DB_MAX_OPEN_CONNS        = "DB_MAX_OPEN_CONNS"
	DB_MIN_CONNS             = "DB_MIN_CONNS"
	JAG_DSN                  = "JAG_DSN"
	MAIL_HOST                = "MAIL_HOST"
	MAIL_PORT                = "MAIL_PORT"
	MAIL_USERNAME            = "MAIL_USERNAME"
	MAIL_PASSWORD            = "MAIL_PASSWORD"
	MAIL_COUNT_OF_MAILS      = "MAIL_COUNT_OF_MAILS"
	LOG_FILE                 = "LOG_FILE"
	LOG_LEVEL                = "LOG_LEVEL"
	REPORTS_DIR              = "REPORTS_DIR"

	DefaultConfigFile = "./configs/app.env"
)

var errMailboxes = errors.New("MAIL_HOST, MAIL_USERNAME and MAIL_PASSWORD must list the same number of mailboxes")

type Entity struct {
	App  Application
	DB   Database
	Jag  Jaeger
	Mail Mail
	Log  Logging

	v *viper.Viper
}

// NewConfig reads the env-formatted file at path (CONFIG_FILE overrides it, a missing
// file is fine) and lets environment variables win over the file.
func NewConfig(path string) (*Entity, error) {
	if p, ok := os.LookupEnv("CONFIG_FILE"); ok && p != "" {
		path = p
	}

	v := viper.New()
	setDefaults(v)
	v.AllowEmptyEnv(false)
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("NewConfig failed: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("NewConfig failed: %w", err)
		}
	}

	return load(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(APP_HOST, "0.0.0.0")
	v.SetDefault(APP_PORT, "8080")
	v.SetDefault(DB_HOST, "localhost")
	v.SetDefault(DB_PORT, 5432)
	v.SetDefault(DB_CONN_MAX_LIFE_MINUTES, 30)
	v.SetDefault(DB_MAX_OPEN_CONNS, 20)
	v.SetDefault(DB_MIN_CONNS, 2)
	v.SetDefault(MAIL_PORT, "993")
	v.SetDefault(MAIL_COUNT_OF_MAILS, 10)
	v.SetDefault(LOG_FILE, "./logs/logs.txt")
	v.SetDefault(LOG_LEVEL, "info")
	v.SetDefault(REPORTS_DIR, "./reports")
}

func load(v *viper.Viper) (*Entity, error) {
	config := &Entity{v: v}

	config.App = Application{
		Port:       v.GetString(APP_PORT),
		Host:       v.GetString(APP_HOST),
		ReportsDir: v.GetString(REPORTS_DIR),
	}

	config.DB = Database{
		Hostname:     v.GetString(DB_HOST),
		Name:         v.GetString(DB_NAME),
		User:         v.GetString(DB_USERNAME),
		Pass:         v.GetString(DB_PASS),
		Port:         uint16(v.GetUint32(DB_PORT)),
		ConnLifeTime: v.GetInt(DB_CONN_MAX_LIFE_MINUTES),
		MaxOpenConns: v.GetInt32(DB_MAX_OPEN_CONNS),
		MinConns:     v.GetInt32(DB_MIN_CONNS),
	}

	config.Jag = Jaeger{v.GetString(JAG_DSN)}

	config.Log = Logging{
		File:  v.GetString(LOG_FILE),
		Level: v.GetString(LOG_LEVEL),
	}

	mail, err := parseMail(v)
	if err != nil {
		return nil, fmt.Errorf("NewConfig failed: %w", err)
	}
	config.Mail = mail

	return config, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMail(v *viper.Viper) (Mail, error) {
	hosts := splitList(v.GetString(MAIL_HOST))
	usernames := splitList(v.GetString(MAIL_USERNAME))
	passwords := splitList(v.GetString(MAIL_PASSWORD))

	if len(hosts) != len(usernames) || len(hosts) != len(passwords) {
		return Mail{}, errMailboxes
	}

	return Mail{
		Hostname:     hosts,
		Port:         v.GetString(MAIL_PORT),
		Username:     usernames,
		Password:     passwords,
		CountOfMails: v.GetUint32(MAIL_COUNT_OF_MAILS),
	}, nil
}

// OnChange re-reads the config file whenever it changes on disk and hands the fresh
// values to fn. It does nothing when no file was loaded.
func (e *Entity) OnChange(fn func(fresh *Entity, ev fsnotify.Event)) {
	if e.v == nil || e.v.ConfigFileUsed() == "" {
		return
	}

	e.v.OnConfigChange(func(ev fsnotify.Event) {
		fresh, err := load(e.v)
		if err != nil {
			return
		}
		fn(fresh, ev)
	})
	e.v.WatchConfig()
}

type Application struct {
	Port       string
	Host       string
	ReportsDir string
}

type Database struct {
	Hostname     string
	Name         string
	User         string
	Pass         string
	Port         uint16
	ConnLifeTime int
	MaxOpenConns int32
	MinConns     int32
}

func (d Database) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Pass),
		Host:   d.Hostname + ":" + strconv.Itoa(int(d.Port)),
		Path:   "/" + d.Name,
	}
	return u.String()
}

type Jaeger struct {
	Dsn string
}

type Mail struct {
	Hostname     []string
	Port         string
	Username     []string
	Password     []string
	CountOfMails uint32
}

type Logging struct {
	File  string
	Level string
}
