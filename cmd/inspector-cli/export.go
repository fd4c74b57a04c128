package main

import (
	"fmt"
	"strings"

	"incoming-inspector/internal/services/dossierexport"
	"incoming-inspector/internal/services/inspectionpdf"

	"github.com/spf13/cobra"
)

func newExportCmd(a *cliApp) *cobra.Command {
	var inspectionID, operator, note, outDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export inspection reports",
	}
	cmd.PersistentFlags().StringVar(&inspectionID, "inspection-id", "", "inspection id (required)")
	cmd.PersistentFlags().StringVar(&operator, "operator", "system", "operator id or name")
	cmd.PersistentFlags().StringVar(&note, "note", "", "export note")
	cmd.PersistentFlags().StringVar(&outDir, "out-dir", "", "output directory (defaults to config reports/exports dir)")
	_ = cmd.MarkPersistentFlagRequired("inspection-id")

	cmd.AddCommand(&cobra.Command{
		Use:   "pdf",
		Short: "Render the inspection report PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			dir := strings.TrimSpace(outDir)
			if dir == "" {
				dir = a.cfg.ReportsDir()
			}
			res, err := inspectionpdf.Generate(cmd.Context(), store, inspectionpdf.Options{
				InspectionID: strings.TrimSpace(inspectionID),
				OutputDir:    dir,
				Operator:     strings.TrimSpace(operator),
				Note:         strings.TrimSpace(note),
			})
			if err != nil {
				return err
			}

			fmt.Println("inspection pdf export completed")
			fmt.Printf("inspection_id=%s report_id=%s\n", strings.TrimSpace(inspectionID), res.ReportID)
			fmt.Printf("pdf=%s\n", res.PDFPath)
			fmt.Printf("pdf_sha256=%s\n", res.PDFSHA256)
			if len(res.Warnings) > 0 {
				fmt.Printf("warnings=%s\n", strings.Join(res.Warnings, " | "))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "zip",
		Short: "Package the inspection dossier ZIP",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			dir := strings.TrimSpace(outDir)
			if dir == "" {
				dir = a.cfg.ExportsDir()
			}
			res, err := dossierexport.GenerateZip(cmd.Context(), store, dossierexport.Options{
				InspectionID: strings.TrimSpace(inspectionID),
				ExportDir:    dir,
				CatalogPath:  a.cfg.CatalogPath,
				Operator:     strings.TrimSpace(operator),
				Note:         strings.TrimSpace(note),
			})
			if err != nil {
				return err
			}

			fmt.Println("dossier zip export completed")
			fmt.Printf("inspection_id=%s report_id=%s\n", res.InspectionID, res.ReportID)
			fmt.Printf("zip=%s\n", res.ZipPath)
			fmt.Printf("zip_sha256=%s\n", res.ZipSHA256)
			if len(res.Warnings) > 0 {
				fmt.Printf("warnings=%s\n", strings.Join(res.Warnings, " | "))
			}
			return nil
		},
	})
	return cmd
}
