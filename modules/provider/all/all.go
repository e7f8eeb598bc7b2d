// Package all links every storage provider into the binary.
package all

import (
	_ "github.com/flemzord/dbarchiver/modules/provider/bolt"       // bbolt
	_ "github.com/flemzord/dbarchiver/modules/provider/couchbase"  // couchbase, cb
	_ "github.com/flemzord/dbarchiver/modules/provider/mongodb"    // mongodb, mongo
	_ "github.com/flemzord/dbarchiver/modules/provider/mssql"      // mssql, sqlserver
	_ "github.com/flemzord/dbarchiver/modules/provider/mysql"      // mysql, mariadb
	_ "github.com/flemzord/dbarchiver/modules/provider/postgresql" // postgresql, postgres, pg
	_ "github.com/flemzord/dbarchiver/modules/provider/s3"         // s3
	_ "github.com/flemzord/dbarchiver/modules/provider/sqlite"     // sqlite
)
