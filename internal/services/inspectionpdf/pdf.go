// Package inspectionpdf 生成来料检验报告 PDF（report_type=inspection_pdf）。
//
// PDF 属于二进制产物，通过 /api/reports/{id}/download 获取。
package inspectionpdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"incoming-inspector/internal/domain/model"
	"incoming-inspector/internal/platform/apperr"
	"incoming-inspector/internal/platform/hash"

	"github.com/phpdave11/gofpdf"
)

// ReportType 是 reports 表中的报告类型。
const ReportType = "inspection_pdf"

const generatorVer = "inspectionpdf-0.1.0"

// 审计链只展示末尾若干条，完整链见 ZIP 导出。
const auditTail = 20

// Store 是生成报告所需的存储能力。
type Store interface {
	GetInspection(ctx context.Context, inspectionID string) (*model.Inspection, error)
	ListAuditLogs(ctx context.Context, subjectID string, limit int) ([]model.AuditLog, error)
	SaveReport(ctx context.Context, inspectionID, reportType, filePath, sha256, generatorVersion, status string) (string, error)
	AppendAudit(ctx context.Context, subjectID, eventType, action, status, actor, source string, detail any) error
}

type Options struct {
	InspectionID string
	OutputDir    string
	Operator     string
	Note         string
}

type Result struct {
	ReportID    string   `json:"report_id"`
	PDFPath     string   `json:"pdf_path"`
	PDFSHA256   string   `json:"pdf_sha256"`
	Warnings    []string `json:"warnings,omitempty"`
	GeneratedAt int64    `json:"generated_at"`
}

// Generate 生成检验报告 PDF，登记到 reports 表并写入 export/inspection_pdf 审计。
func Generate(ctx context.Context, store Store, opts Options) (*Result, error) {
	inspectionID := strings.TrimSpace(opts.InspectionID)
	if inspectionID == "" {
		return nil, fmt.Errorf("inspection_id is required: %w", apperr.ErrValidation)
	}
	outDir := strings.TrimSpace(opts.OutputDir)
	if outDir == "" {
		return nil, fmt.Errorf("output_dir is required: %w", apperr.ErrValidation)
	}
	operator := strings.TrimSpace(opts.Operator)
	if operator == "" {
		operator = "system"
	}

	in, err := store.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("get inspection: %w", err)
	}

	warnings := []string{}
	audits, err := store.ListAuditLogs(ctx, inspectionID, 5000)
	if err != nil {
		warnings = append(warnings, "list audits failed: "+err.Error())
		audits = []model.AuditLog{}
	}

	now := time.Now().Unix()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir reports: %w", err)
	}
	pdfPath := filepath.Join(outDir, fmt.Sprintf("%s_inspection_%d.pdf", inspectionID, now))

	pdf, utf8OK := buildPDF(*in, audits, operator, opts.Note, warnings, now)
	if !utf8OK {
		warnings = append(warnings, "pdf utf8 font not available; non-ascii text may be replaced with '?'")
	}
	if err := pdf.OutputFileAndClose(pdfPath); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	sum, _, err := hash.File(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("sha256 pdf: %w", err)
	}

	reportID, err := store.SaveReport(ctx, inspectionID, ReportType, pdfPath, sum, generatorVer, "ready")
	if err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	_ = store.AppendAudit(ctx, inspectionID, "export", ReportType, "success", operator, "inspectionpdf.Generate", map[string]any{
		"report_id":  reportID,
		"pdf":        pdfPath,
		"pdf_sha256": sum,
		"decision":   in.Decision,
		"note":       strings.TrimSpace(opts.Note),
		"warnings":   warnings,
	})

	return &Result{
		ReportID:    reportID,
		PDFPath:     pdfPath,
		PDFSHA256:   sum,
		Warnings:    warnings,
		GeneratedAt: now,
	}, nil
}

func buildPDF(in model.Inspection, audits []model.AuditLog, operator, note string, warnings []string, generatedAt int64) (*gofpdf.Fpdf, bool) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("Incoming Inspection Report", false)

	fontFamily, utf8OK := initPDFUnicodeFont(pdf)

	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 9, "Incoming Inspection Report", "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at: %s", fmtTime(generatedAt)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Operator: %s", safeText(operator, utf8OK)), "", 1, "L", false, 0, "")
	if strings.TrimSpace(note) != "" {
		pdf.MultiCell(0, 5, fmt.Sprintf("Note: %s", safeText(note, utf8OK)), "", "L", false)
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "1. Article")
	kv(pdf, fontFamily, utf8OK, "Company", in.Company)
	kv(pdf, fontFamily, utf8OK, "Article ID", fmt.Sprintf("%d", in.ArticleID))
	kv(pdf, fontFamily, utf8OK, "Part Number", in.PartNumber)
	kv(pdf, fontFamily, utf8OK, "Serial", in.SerialNumber)
	kv(pdf, fontFamily, utf8OK, "Batch", in.BatchNumber)
	kv(pdf, fontFamily, utf8OK, "Description", in.Description)
	kv(pdf, fontFamily, utf8OK, "Documentation", yesNo(in.HasDocumentation))
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "2. Decision")
	kv(pdf, fontFamily, utf8OK, "Inspection ID", in.InspectionID)
	kv(pdf, fontFamily, utf8OK, "Decision", strings.ToUpper(string(in.Decision)))
	kv(pdf, fontFamily, utf8OK, "Inspector", in.Inspector)
	kv(pdf, fontFamily, utf8OK, "Incoming Date", in.IncomingDate)
	kv(pdf, fontFamily, utf8OK, "Result", fmt.Sprintf("%d / %d OK", in.OKCount, in.Total))
	kv(pdf, fontFamily, utf8OK, "Started At", fmtTime(in.StartedAt))
	kv(pdf, fontFamily, utf8OK, "Completed At", fmtTime(in.CompletedAt))
	kv(pdf, fontFamily, utf8OK, "Catalog", in.CatalogIdentity)
	kv(pdf, fontFamily, utf8OK, "Record Hash", in.RecordHash)
	pdf.Ln(2)

	localWarnings := append([]string{}, warnings...)
	if !utf8OK {
		localWarnings = append(localWarnings, "pdf utf8 font not available; non-ascii text may be replaced with '?'")
	}
	if len(localWarnings) > 0 {
		sectionTitle(pdf, fontFamily, "Warnings")
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(120, 80, 0)
		for _, w := range localWarnings {
			pdf.MultiCell(0, 4.5, "- "+safeText(w, utf8OK), "", "L", false)
		}
		pdf.Ln(2)
	}

	sectionTitle(pdf, fontFamily, "3. Checklist")
	if len(in.Items) == 0 {
		emptyLine(pdf, fontFamily)
	} else {
		group := ""
		for _, it := range in.Items {
			if it.GroupID != group {
				group = it.GroupID
				pdf.SetFont(fontFamily, "B", 11)
				pdf.SetTextColor(20, 20, 20)
				pdf.CellFormat(0, 6, safeText(firstNonEmpty(it.GroupTitle, it.GroupID), utf8OK), "", 1, "L", false, 0, "")
			}
			label := it.Label
			if it.RequiredForAccept {
				label += " *"
			}
			pdf.SetFont(fontFamily, "B", 9)
			pdf.SetTextColor(30, 30, 30)
			pdf.CellFormat(14, 4.8, valueMark(it.Value), "", 0, "L", false, 0, "")
			pdf.SetFont(fontFamily, "", 9)
			pdf.MultiCell(0, 4.8, safeText(label, utf8OK), "", "L", false)
		}
		pdf.SetFont(fontFamily, "", 8)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, 4, "* required for acceptance", "", "L", false)
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "4. Inspector Notes")
	if strings.TrimSpace(in.Notes) == "" {
		emptyLine(pdf, fontFamily)
	} else {
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(30, 30, 30)
		pdf.MultiCell(0, 5, safeText(in.Notes, utf8OK), "", "L", false)
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "5. Audit Chain (Tail)")
	tail := audits
	if len(tail) > auditTail {
		tail = tail[len(tail)-auditTail:]
	}
	if len(tail) == 0 {
		emptyLine(pdf, fontFamily)
	} else {
		for _, a := range tail {
			pdf.SetFont(fontFamily, "", 8)
			pdf.SetTextColor(40, 40, 40)
			pdf.MultiCell(0, 4, fmt.Sprintf("%s | %s/%s | %s | %s",
				fmtTime(a.OccurredAt),
				safeText(a.EventType, utf8OK),
				safeText(a.Action, utf8OK),
				safeText(a.Status, utf8OK),
				a.ChainHash,
			), "", "L", false)
		}
	}

	pdf.Ln(2)
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 4.5, "The complete audit chain and checklist values are in the dossier ZIP export (manifest.json + hashes.sha256).", "", "L", false)

	return pdf, utf8OK
}

func valueMark(v model.ChecklistValue) string {
	switch v {
	case model.Pass:
		return "PASS"
	case model.NotApplicable:
		return "N/A"
	default:
		return "-"
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func emptyLine(pdf *gofpdf.Fpdf, fontFamily string) {
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 5, "(empty)", "", "L", false)
}

func sectionTitle(pdf *gofpdf.Fpdf, fontFamily string, title string) {
	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 200, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, fontFamily string, utf8OK bool, key string, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(36, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.2, safeText(value, utf8OK), "", "L", false)
}

func fmtTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

// safeText 去掉换行/制表符；无 UTF-8 字体时把非 ASCII 字符替换为 '?'。
func safeText(s string, utf8OK bool) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.TrimSpace(s)
	if utf8OK {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// initPDFUnicodeFont 尝试加载 UTF-8 字体（TrueType），以支持西语重音、中文等非 ASCII 字符。
//
// 规则：
// 1) 如果设置了环境变量 INSPECTOR_PDF_FONT，优先使用该文件路径。
// 2) 否则按常见系统字体路径探测（macOS/Windows/Linux）。
// 3) 加载失败则回退到核心字体（Helvetica），并通过 safeText() 兜底替换非 ASCII 字符。
func initPDFUnicodeFont(pdf *gofpdf.Fpdf) (family string, utf8OK bool) {
	const familyName = "unicode"
	candidates := []string{}

	if v := strings.TrimSpace(os.Getenv("INSPECTOR_PDF_FONT")); v != "" {
		candidates = append(candidates, v)
	}

	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates,
			"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
			"/System/Library/Fonts/Supplemental/Arial.ttf",
		)
	case "windows":
		candidates = append(candidates,
			`C:\Windows\Fonts\arialuni.ttf`,
			`C:\Windows\Fonts\arial.ttf`,
		)
	default:
		candidates = append(candidates,
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
		)
	}

	for _, p := range candidates {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}

		// 只有一个字体文件时也注册 B 样式，避免 SetFont(...,"B",...) 报错。
		pdf.AddUTF8Font(familyName, "", p)
		if pdf.Err() {
			pdf.ClearError()
			continue
		}
		pdf.AddUTF8Font(familyName, "B", p)
		if pdf.Err() {
			pdf.ClearError()
		}
		return familyName, true
	}

	return "Helvetica", false
}
