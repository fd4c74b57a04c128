package dossierexport

import (
	"archive/zip"
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/services/auditverify"
)

// VerifyItem 是 hashes.sha256 中一行的复核结果。
type VerifyItem struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Status   string `json:"status"` // ok|missing|mismatch|error
	Error    string `json:"error,omitempty"`
}

// VerifyResult 是档案 ZIP 的复核结果。
type VerifyResult struct {
	ZipPath string       `json:"zip_path"`
	Total   int          `json:"total"`
	OK      int          `json:"ok"`
	Failed  int          `json:"failed"`
	Items   []VerifyItem `json:"items"`

	// Audit 为 manifest.json 内审计链的复算结果；manifest 缺失或无法解析时为 nil。
	Audit *auditverify.Result `json:"audit,omitempty"`
}

// Passed 表示文件哈希与审计链均通过。
func (r *VerifyResult) Passed() bool {
	return r.Failed == 0 && (r.Audit == nil || r.Audit.OK)
}

// VerifyZip 按 hashes.sha256 逐个复算 ZIP 内文件哈希，并复算 manifest 中的审计链。
func VerifyZip(path string) (*VerifyResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}

	hashList, ok := files["hashes.sha256"]
	if !ok {
		return nil, fmt.Errorf("hashes.sha256 not found in zip")
	}
	raw, err := readZipFile(hashList)
	if err != nil {
		return nil, fmt.Errorf("read hashes.sha256: %w", err)
	}

	res := &VerifyResult{ZipPath: path, Items: []VerifyItem{}}
	sc := bufio.NewScanner(strings.NewReader(string(raw)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// sha256sum 格式：<sha256><两个空格><path>
		parts := strings.Fields(line)
		if len(parts) < 2 || len(parts[0]) != 64 {
			continue
		}
		item := VerifyItem{Path: strings.Join(parts[1:], " "), Expected: parts[0]}
		res.Total++

		f, ok := files[item.Path]
		switch {
		case !ok:
			item.Status = "missing"
		default:
			sum, err := sha256OfZipFile(f)
			switch {
			case err != nil:
				item.Status = "error"
				item.Error = err.Error()
			case strings.EqualFold(sum, item.Expected):
				item.Actual = sum
				item.Status = "ok"
			default:
				item.Actual = sum
				item.Status = "mismatch"
			}
		}
		if item.Status == "ok" {
			res.OK++
		} else {
			res.Failed++
		}
		res.Items = append(res.Items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan hashes.sha256: %w", err)
	}

	if mf, ok := files["manifest.json"]; ok {
		if data, err := readZipFile(mf); err == nil {
			var payload struct {
				Audits []model.AuditLog `json:"audits"`
			}
			if err := json.Unmarshal(data, &payload); err == nil {
				a := auditverify.VerifyAuditLogs(payload.Audits)
				res.Audit = &a
			}
		}
	}
	return res, nil
}

func sha256OfZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
