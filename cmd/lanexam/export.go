package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/export"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results as JSON",
		Long: `Export every attempt at an exam as JSON.

The output may be a file path, - for stdout, or s3://bucket/key to upload to
an S3-compatible object store such as MinIO.`,
		RunE: runExport,
	}
	f := cmd.Flags()
	addDBFlags(cmd)
	f.String("exam-id", "", "Exam to export (required)")
	f.StringP("output", "o", "-", "Output file path, - for stdout, or s3://bucket/key")
	f.String("s3-endpoint", "", "S3 endpoint host:port for s3:// outputs")
	f.String("s3-access-key", "", "S3 access key")
	f.String("s3-secret-key", "", "S3 secret key")
	f.String("s3-region", "", "S3 region")
	f.Bool("s3-secure", true, "Use HTTPS for the S3 endpoint")
	addLogFlags(cmd, "info")

	_ = cmd.MarkFlagRequired("exam-id")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v, os.Stderr)

	db, err := openStore(v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	examID := v.GetString("exam-id")
	exp, err := db.ExportExam(cmd.Context(), examID)
	if err != nil {
		return fmt.Errorf("export exam %s: %w", examID, err)
	}

	out := v.GetString("output")
	s3 := export.S3Config{
		Endpoint:  v.GetString("s3-endpoint"),
		AccessKey: v.GetString("s3-access-key"),
		SecretKey: v.GetString("s3-secret-key"),
		Region:    v.GetString("s3-region"),
		Secure:    v.GetBool("s3-secure"),
	}
	if err := export.Write(cmd.Context(), out, exp, s3, cmd.OutOrStdout()); err != nil {
		return err
	}
	if out != "-" && out != "" {
		slog.Info("exported results", "exam_id", examID, "attempts", len(exp.Results), "output", out)
	}
	return nil
}
