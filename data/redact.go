package data

import (
	"net/url"
	"regexp"

	"github.com/go-sql-driver/mysql"
)

const redacted = "xxxxx"

var keywordPassword = regexp.MustCompile(`(?i)(\bpassword\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)

// RedactDSN hides the password in a connection string so it can be logged.
// URL, keyword/value and MySQL DSNs are understood; anything else is returned unchanged.
func RedactDSN(driver, dsn string) string {
	if driver == DriverMySQL {
		if cfg, err := mysql.ParseDSN(dsn); err == nil {
			if cfg.Passwd != "" {
				cfg.Passwd = redacted
			}
			return cfg.FormatDSN()
		}
	}

	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		q := u.Query()
		if q.Has("password") {
			q.Set("password", redacted)
			u.RawQuery = q.Encode()
		}
		return u.Redacted()
	}

	return keywordPassword.ReplaceAllString(dsn, "${1}"+redacted)
}
