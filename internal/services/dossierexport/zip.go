// Package dossierexport 打包检验档案 ZIP（report_type=dossier_zip）。
package dossierexport

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"incoming-inspector/internal/app"
	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
	"incoming-inspector/internal/platform/hash"
	"incoming-inspector/internal/services/auditverify"
)

// ReportType 是 reports 表中的报告类型。
const ReportType = "dossier_zip"

const (
	manifestSchemaV1 = "incoming_inspector.dossier_manifest.v1"
	zipGeneratorVer  = "dossier-exportzip-0.1.0"
)

// Store 是打包所需的存储能力。
type Store interface {
	GetInspection(ctx context.Context, inspectionID string) (*model.Inspection, error)
	ListAuditLogs(ctx context.Context, subjectID string, limit int) ([]model.AuditLog, error)
	ListReportsByInspection(ctx context.Context, inspectionID string) ([]model.ReportInfo, error)
	SaveReport(ctx context.Context, inspectionID, reportType, filePath, sha256, generatorVersion, status string) (string, error)
	AppendAudit(ctx context.Context, subjectID, eventType, action, status, actor, source string, detail any) error
}

// Options 定义档案 ZIP 的生成参数。
type Options struct {
	InspectionID string

	// ExportDir 为 ZIP 落盘目录。
	ExportDir string
	// CatalogPath 为当前生效的清单文件，一并打包以便追溯判定依据。
	CatalogPath string

	Operator string
	Note     string
}

type FileHashEntry struct {
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
	Kind      string `json:"kind"` // report|catalog|manifest
}

type ManifestReport struct {
	Report  model.ReportInfo `json:"report"`
	ZipPath string           `json:"zip_path"`
}

type Manifest struct {
	Schema      string `json:"schema"`
	GeneratedAt int64  `json:"generated_at"`

	App struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		BuildTime string `json:"build_time"`
	} `json:"app"`

	Inspection  *model.Inspection  `json:"inspection"`
	Audits      []model.AuditLog   `json:"audits"`
	AuditVerify auditverify.Result `json:"audit_verify"`
	Reports     []ManifestReport   `json:"reports"`
	Files       []FileHashEntry    `json:"files"`
	Warnings    []string           `json:"warnings,omitempty"`
	Note        string             `json:"note,omitempty"`
}

// Result 是一次 ZIP 导出的摘要输出。
type Result struct {
	InspectionID string   `json:"inspection_id"`
	ReportID     string   `json:"report_id"`
	ZipPath      string   `json:"zip_path"`
	ZipSHA256    string   `json:"zip_sha256"`
	Warnings     []string `json:"warnings,omitempty"`
	StartedAt    int64    `json:"started_at"`
	FinishedAt   int64    `json:"finished_at"`
}

// GenerateZip 生成检验档案 ZIP 并登记为 report_type=dossier_zip。
//
// ZIP 内容：
// - manifest.json：检验记录、判定明细、审计链及其校验结果、报告索引
// - hashes.sha256：ZIP 内各文件（除自身）sha256 列表（sha256sum 兼容格式）
// - reports/..：已生成的报告文件（不包含 dossier_zip 自身）
// - catalog/..：清单文件
func GenerateZip(ctx context.Context, store Store, opts Options) (*Result, error) {
	startedAt := time.Now().Unix()

	inspectionID := strings.TrimSpace(opts.InspectionID)
	if inspectionID == "" {
		return nil, fmt.Errorf("inspection_id is required: %w", apperr.ErrValidation)
	}
	exportDir := strings.TrimSpace(opts.ExportDir)
	if exportDir == "" {
		return nil, fmt.Errorf("export_dir is required: %w", apperr.ErrValidation)
	}
	operator := strings.TrimSpace(opts.Operator)
	if operator == "" {
		operator = "system"
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	in, err := store.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("get inspection: %w", err)
	}
	audits, err := store.ListAuditLogs(ctx, inspectionID, 5000)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	allReports, err := store.ListReportsByInspection(ctx, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	type includeSpec struct {
		SrcPath string
		ZipPath string
		Kind    string
	}

	var warnings []string
	var includes []includeSpec

	manifestReports := make([]ManifestReport, 0, len(allReports))
	for _, r := range allReports {
		if strings.TrimSpace(r.ReportType) == ReportType {
			continue
		}
		src := strings.TrimSpace(r.FilePath)
		if src == "" {
			continue
		}
		zipPath := "reports/" + filepath.Base(src)
		includes = append(includes, includeSpec{SrcPath: src, ZipPath: zipPath, Kind: "report"})
		manifestReports = append(manifestReports, ManifestReport{Report: r, ZipPath: zipPath})
	}

	if catalog := strings.TrimSpace(opts.CatalogPath); catalog != "" {
		includes = append(includes, includeSpec{
			SrcPath: catalog,
			ZipPath: "catalog/" + filepath.Base(catalog),
			Kind:    "catalog",
		})
	}

	zipPath := filepath.Join(exportDir, fmt.Sprintf("%s_dossier_%d.zip", inspectionID, time.Now().Unix()))
	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)
	defer func() { _ = zw.Close() }()

	var fileHashes []FileHashEntry
	for _, it := range includes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum, size, err := writeZipFileFromDisk(zw, it.SrcPath, it.ZipPath)
		if err != nil {
			// 缺失文件不阻断导出，但在 manifest 中留痕。
			warnings = append(warnings, fmt.Sprintf("skip file %s -> %s: %v", it.SrcPath, it.ZipPath, err))
			continue
		}
		fileHashes = append(fileHashes, FileHashEntry{Path: it.ZipPath, SHA256: sum, SizeBytes: size, Kind: it.Kind})
	}

	verify := auditverify.VerifyAuditLogs(audits)
	if !verify.OK {
		warnings = append(warnings, fmt.Sprintf("audit chain verification failed: %d record(s)", verify.Failed))
	}

	manifest := Manifest{
		Schema:      manifestSchemaV1,
		GeneratedAt: time.Now().Unix(),
		Inspection:  in,
		Audits:      audits,
		AuditVerify: verify,
		Reports:     manifestReports,
		Warnings:    warnings,
		Note:        strings.TrimSpace(opts.Note),
	}
	manifest.App.Version = app.Version
	manifest.App.Commit = app.Commit
	manifest.App.BuildTime = app.BuildTime

	sort.Slice(fileHashes, func(i, j int) bool { return fileHashes[i].Path < fileHashes[j].Path })
	manifest.Files = fileHashes

	manifestRaw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestSum, manifestSize, err := writeZipFileFromBytes(zw, "manifest.json", manifestRaw)
	if err != nil {
		return nil, fmt.Errorf("write manifest to zip: %w", err)
	}
	fileHashes = append(fileHashes, FileHashEntry{Path: "manifest.json", SHA256: manifestSum, SizeBytes: manifestSize, Kind: "manifest"})

	sort.Slice(fileHashes, func(i, j int) bool { return fileHashes[i].Path < fileHashes[j].Path })
	hashLines := make([]string, 0, len(fileHashes)+4)
	hashLines = append(hashLines, "# incoming-inspector dossier hash list")
	hashLines = append(hashLines, fmt.Sprintf("# generated_at=%d", time.Now().Unix()))
	hashLines = append(hashLines, "# format: <sha256><two spaces><path>")
	for _, fh := range fileHashes {
		hashLines = append(hashLines, fmt.Sprintf("%s  %s", fh.SHA256, fh.Path))
	}
	hashLines = append(hashLines, "")
	if _, _, err := writeZipFileFromBytes(zw, "hashes.sha256", []byte(strings.Join(hashLines, "\n"))); err != nil {
		return nil, fmt.Errorf("write hashes.sha256 to zip: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close zip file: %w", err)
	}

	zipSum, _, err := hash.File(zipPath)
	if err != nil {
		return nil, fmt.Errorf("hash zip: %w", err)
	}

	reportID, err := store.SaveReport(ctx, inspectionID, ReportType, zipPath, zipSum, zipGeneratorVer, "ready")
	if err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	_ = store.AppendAudit(ctx, inspectionID, "export", ReportType, "success", operator, "dossierexport.GenerateZip", map[string]any{
		"report_id":  reportID,
		"zip_path":   zipPath,
		"zip_sha256": zipSum,
		"warnings":   warnings,
	})

	return &Result{
		InspectionID: inspectionID,
		ReportID:     reportID,
		ZipPath:      zipPath,
		ZipSHA256:    zipSum,
		Warnings:     warnings,
		StartedAt:    startedAt,
		FinishedAt:   time.Now().Unix(),
	}, nil
}

func writeZipFileFromDisk(zw *zip.Writer, srcPath, zipPath string) (sum string, size int64, err error) {
	fi, err := os.Stat(srcPath)
	if err != nil {
		return "", 0, err
	}
	if fi.IsDir() {
		return "", 0, fmt.Errorf("is a directory")
	}

	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return "", 0, err
	}
	hdr.Name = zipPath
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, hasher), src)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

func writeZipFileFromBytes(zw *zip.Writer, zipPath string, b []byte) (sum string, size int64, err error) {
	hdr := &zip.FileHeader{
		Name:     zipPath,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, hasher), bytes.NewReader(b))
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}
