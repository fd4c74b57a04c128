package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strconv"
	"strings"
)

// Text 将多个字段按换行拼接后计算 SHA-256。
// 用于审计链 chain_hash 和检验记录 record_hash。
func Text(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte("\n"))
		}
		_, _ = h.Write([]byte(strings.TrimSpace(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AuditChain 计算一条审计事件的 chain_hash：
// 上一条 chain_hash + 主体 + 事件字段 + 发生时间 + detail_json（compact 形式）。
// 写入（Store.AppendAudit）与复核（auditverify）必须共用这一公式。
func AuditChain(prev, subjectID, eventType, action, status string, occurredAt int64, detailJSON string) string {
	return Text(prev, subjectID, eventType, action, status, strconv.FormatInt(occurredAt, 10), detailJSON)
}

// Bytes 计算原始字节的 SHA-256（清单文件身份等场景）。
func Bytes(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// File 读取文件并计算 SHA-256，同时返回文件大小。
func File(path string) (sum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
