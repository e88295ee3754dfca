// Package migrations 内嵌运行存储所需的 MySQL 迁移脚本。
package migrations

import "embed"

// SQL 按文件名顺序内嵌 script_runs 等表的迁移脚本。
//
//go:embed *.sql
var SQL embed.FS
