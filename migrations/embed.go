// Package migrations 内嵌 SQL 迁移文件，二进制不再依赖运行目录下的 migrations/。
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
