package repo

import "strings"

// likeEscaper 转义 LIKE 通配符，MySQL 默认以反斜杠作为 LIKE 转义符
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern 生成按字面量做子串匹配的 LIKE 模式
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
