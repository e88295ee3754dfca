package proofs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Genesis 根据最初的请求文本生成不可变的创世指纹。
// 相同的请求永远得到相同的指纹。
func Genesis(request string) string {
	sum := sha256.Sum256([]byte(request))
	return hex.EncodeToString(sum[:])
}

// Extend 把一次角色思考链接到既有指纹上，生成新的链头。
// 片段格式为 prior:role:thought；角色标识是固定枚举，
// 不包含冒号，因此无需转义。
func Extend(prior, roleKind, thought string) string {
	fragment := fmt.Sprintf("%s:%s:%s", prior, roleKind, thought)
	sum := sha256.Sum256([]byte(fragment))
	return hex.EncodeToString(sum[:])
}
