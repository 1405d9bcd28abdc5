package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// IssueToken 生成一次性访问令牌
// 256位随机值，URL安全编码。原始令牌只出现在外发链接里，
// 不落库、不写日志，存储侧只保留摘要。
func IssueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成访问令牌失败: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken 计算令牌摘要（SHA-256十六进制）
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken 校验候选令牌
// 摘要不匹配返回 ErrNotFound，已过期返回 ErrExpired。
// 没有吊销列表，重新派发覆盖摘要即作废旧链接。
func VerifyToken(candidate, storedDigest string, expiresAt *time.Time) error {
	digest := HashToken(candidate)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(storedDigest)) != 1 {
		return ErrNotFound
	}
	if expiresAt == nil || time.Now().After(*expiresAt) {
		return ErrExpired
	}
	return nil
}
