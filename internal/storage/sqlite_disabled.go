//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

func openSQLite(Config, logx.Logger) (Store, error) {
	return nil, errors.New("sqlite driver selected but binary was built without -tags sqlite")
}
