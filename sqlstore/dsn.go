// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlstore

import (
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/FerretDB/datastore/internal/sqlquery"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
)

// dataSourceName converts a connection URI to the driver's data source name.
func dataSourceName(d sqlquery.Dialect, uri string) (string, error) {
	switch d {
	case sqlquery.DialectSQLite:
		for _, p := range []string{"sqlite3://", "sqlite://"} {
			if strings.HasPrefix(uri, p) {
				return strings.TrimPrefix(uri, p), nil
			}
		}

		return uri, nil

	case sqlquery.DialectMySQL:
		return mysqlDSN(uri)

	case sqlquery.DialectPostgreSQL:
		u, err := url.Parse(uri)
		if err != nil {
			return "", lazyerrors.Error(err)
		}

		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return "", lazyerrors.Errorf("expected postgres:// or postgresql:// scheme, got %q", u.Scheme)
		}

		return uri, nil

	case sqlquery.DialectHANA:
		u, err := url.Parse(uri)
		if err != nil {
			return "", lazyerrors.Error(err)
		}

		switch u.Scheme {
		case "hdb":
		case "hana":
			u.Scheme = "hdb"
		default:
			return "", lazyerrors.Errorf("expected hdb:// or hana:// scheme, got %q", u.Scheme)
		}

		return u.String(), nil

	default:
		return "", lazyerrors.Errorf("unexpected dialect %q", d)
	}
}

// mysqlDSN converts mysql:// URL to the driver's DSN;
// other values are expected to be DSNs already.
func mysqlDSN(uri string) (string, error) {
	if !strings.HasPrefix(uri, "mysql://") {
		cfg, err := mysql.ParseDSN(uri)
		if err != nil {
			return "", lazyerrors.Error(err)
		}

		return cfg.FormatDSN(), nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", lazyerrors.Error(err)
	}

	cfg := mysql.NewConfig()
	cfg.User = u.User.Username()
	cfg.Passwd, _ = u.User.Password()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")

	dsn := cfg.FormatDSN()
	if u.RawQuery == "" {
		return dsn, nil
	}

	// parse again to interpret driver parameters such as parseTime
	if cfg, err = mysql.ParseDSN(dsn + "?" + u.RawQuery); err != nil {
		return "", lazyerrors.Error(err)
	}

	return cfg.FormatDSN(), nil
}
