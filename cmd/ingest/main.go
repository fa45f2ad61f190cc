package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	collectionID string
	docType      string
	docName      string
)

func main() {
	root := &cobra.Command{
		Use:   "lorekeeper-ingest",
		Short: "Upload campaign documents to a lorekeeper server",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("LOREKEEPER_URL", "http://localhost:9020"), "lorekeeper server URL")

	upload := &cobra.Command{
		Use:   "upload [files...]",
		Short: "Upload one or more text/markdown files for indexing",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUpload,
	}
	upload.Flags().StringVar(&collectionID, "collection", "", "collection UUID (required)")
	upload.Flags().StringVar(&docType, "type", "lore", "document type: rulebook, session_notes, handout, lore")
	upload.Flags().StringVar(&docName, "name", "", "document name (defaults to the file name)")
	_ = upload.MarkFlagRequired("collection")

	status := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show an ingest job's status",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}

	root.AddCommand(upload, status)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 30 * time.Second}

	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		name := docName
		if name == "" || len(args) > 1 {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		payload, err := json.Marshal(map[string]string{
			"collection_id": collectionID,
			"name":          name,
			"doc_type":      docType,
			"content":       string(content),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}

		resp, err := client.Post(
			strings.TrimRight(serverURL, "/")+"/internal/ingest/documents",
			"application/json",
			bytes.NewReader(payload),
		)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("upload of %s rejected: status %d: %s", path, resp.StatusCode, string(body))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, strings.TrimSpace(string(body)))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/internal/ingest/jobs/" + args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch job status: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status lookup failed: status %d: %s", resp.StatusCode, string(body))
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
	return nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
