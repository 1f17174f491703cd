package postgres

import (
	"net/url"
	"strconv"

	"github.com/prism-infra/prism-sync/config"
)

// DSN renders cfg as a postgres URL so passwords with spaces or quotes survive.
func DSN(cfg *config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
