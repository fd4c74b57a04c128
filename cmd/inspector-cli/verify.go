package main

import (
	"fmt"
	"strings"

	"incoming-inspector/internal/platform/hash"
	"incoming-inspector/internal/services/auditverify"
	"incoming-inspector/internal/services/dossierexport"

	"github.com/spf13/cobra"
)

// newVerifyCmd 是 verify 子命令：
// - verify audits：复算检验记录的审计哈希链
// - verify reports：复核 reports.file_path 文件哈希（与入库 sha256 对比）
// - verify dossier-zip：校验档案 ZIP 内的 hashes.sha256 与 manifest 审计链
func newVerifyCmd(a *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Integrity checks for audit chains, reports and dossier ZIPs",
	}
	cmd.AddCommand(newVerifyAuditsCmd(a), newVerifyReportsCmd(a), newVerifyDossierZipCmd())
	return cmd
}

func newVerifyAuditsCmd(a *cliApp) *cobra.Command {
	var subjectID string
	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Recompute the audit hash chain of an inspection",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := auditverify.Verify(cmd.Context(), store, strings.TrimSpace(subjectID))
			if err != nil {
				return err
			}
			fmt.Println("audit chain verify completed")
			fmt.Printf("subject_id=%s total=%d failed=%d prev_hash_failed=%d chain_hash_failed=%d\n",
				subjectID, res.Total, res.Failed, res.PrevHashFailed, res.ChainHashFailed)
			if !res.OK {
				printAuditFailures(res, "")
				return fmt.Errorf("audit chain verify failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&subjectID, "inspection-id", "", "inspection (or session) id (required)")
	_ = cmd.MarkFlagRequired("inspection-id")
	return cmd
}

type reportVerifyItem struct {
	ReportID string
	FilePath string
	Expected string
	Actual   string
	Status   string // ok|missing|mismatch
	Error    string
}

func newVerifyReportsCmd(a *cliApp) *cobra.Command {
	var inspectionID string
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Re-hash report files and compare with the stored sha256",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			inspectionID = strings.TrimSpace(inspectionID)
			reports, err := store.ListReportsByInspection(cmd.Context(), inspectionID)
			if err != nil {
				return err
			}

			results := make([]reportVerifyItem, 0, len(reports))
			failCount := 0
			for _, r := range reports {
				item := reportVerifyItem{ReportID: r.ReportID, FilePath: r.FilePath, Expected: r.SHA256}
				sum, _, err := hash.File(r.FilePath)
				switch {
				case err != nil:
					item.Status = "missing"
					item.Error = err.Error()
				case !strings.EqualFold(sum, r.SHA256):
					item.Actual = sum
					item.Status = "mismatch"
				default:
					item.Actual = sum
					item.Status = "ok"
				}
				if item.Status != "ok" {
					failCount++
				}
				results = append(results, item)
			}

			fmt.Println("report sha256 verify completed")
			fmt.Printf("inspection_id=%s total=%d ok=%d failed=%d\n", inspectionID, len(results), len(results)-failCount, failCount)
			for _, r := range results {
				if r.Status == "ok" {
					continue
				}
				if r.Error != "" {
					fmt.Printf("FAIL report_id=%s status=%s expected=%s path=%s error=%s\n", r.ReportID, r.Status, r.Expected, r.FilePath, r.Error)
				} else {
					fmt.Printf("FAIL report_id=%s status=%s expected=%s actual=%s path=%s\n", r.ReportID, r.Status, r.Expected, r.Actual, r.FilePath)
				}
			}
			if failCount > 0 {
				return fmt.Errorf("report sha256 verify failed: %d items mismatch/missing", failCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inspectionID, "inspection-id", "", "inspection id (required)")
	_ = cmd.MarkFlagRequired("inspection-id")
	return cmd
}

func newVerifyDossierZipCmd() *cobra.Command {
	var zipPath string
	cmd := &cobra.Command{
		Use:   "dossier-zip",
		Short: "Verify hashes.sha256 and the audit chain inside a dossier ZIP",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := dossierexport.VerifyZip(strings.TrimSpace(zipPath))
			if err != nil {
				return err
			}

			fmt.Println("dossier zip verify completed")
			fmt.Printf("zip=%s\n", res.ZipPath)
			fmt.Printf("files_total=%d ok=%d failed=%d\n", res.Total, res.OK, res.Failed)
			for _, it := range res.Items {
				if it.Status == "ok" {
					continue
				}
				if it.Error != "" {
					fmt.Printf("FAIL %s status=%s expected=%s actual=%s error=%s\n", it.Path, it.Status, it.Expected, it.Actual, it.Error)
				} else {
					fmt.Printf("FAIL %s status=%s expected=%s actual=%s\n", it.Path, it.Status, it.Expected, it.Actual)
				}
			}
			if res.Audit != nil {
				fmt.Printf("audit_chain_total=%d failed=%d prev_hash_failed=%d chain_hash_failed=%d\n",
					res.Audit.Total, res.Audit.Failed, res.Audit.PrevHashFailed, res.Audit.ChainHashFailed)
				if !res.Audit.OK {
					printAuditFailures(*res.Audit, "audit_chain ")
				}
			}
			if !res.Passed() {
				return fmt.Errorf("dossier zip verify failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&zipPath, "zip", "", "path to dossier zip (required)")
	_ = cmd.MarkFlagRequired("zip")
	return cmd
}

func printAuditFailures(res auditverify.Result, prefix string) {
	for _, f := range res.Failures {
		fmt.Printf("FAIL %sindex=%d event_id=%s message=%s expected_prev=%s actual_prev=%s expected_hash=%s actual_hash=%s\n",
			prefix, f.Index, f.EventID, f.Message, f.ExpectedPrevHash, f.ActualPrevHash, f.ExpectedChainHash, f.ActualChainHash,
		)
	}
}
