package sqlite

import "database/sql"

// ErrSQLTxDone is exposed to the external test package.
var ErrSQLTxDone = sql.ErrTxDone
