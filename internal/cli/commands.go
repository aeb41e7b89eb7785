package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/service"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/pkg/tasks"
	"github.com/spf13/cobra"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload and process local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				doc, err := a.IngestFile(cmd.Context(), path)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				// 同步模式下 Upload 返回时处理已结束，重新读取最终状态
				if final, err := a.DocumentSvc.GetDocument(cmd.Context(), doc.ID); err == nil {
					doc = final
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", doc.ID, doc.Status, doc.Filename)
				if doc.Status == model.DocumentFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		docID   string
		limit   int
		asJSON  bool
		showAll bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search with reranking",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			if strings.TrimSpace(query) == "" && docID == "" {
				return fmt.Errorf("query or --doc is required")
			}

			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Search.Search(cmd.Context(), query, docID, limit)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResults(cmd.OutOrStdout(), res, showAll)
			return nil
		},
	}
	cmd.Flags().StringVar(&docID, "doc", "", "restrict to one document id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "candidate width before rerank (0 uses config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&showAll, "full", false, "show full chunk text")
	return cmd
}

func printResults(w io.Writer, res service.Retrieval, full bool) {
	if len(res.Results) == 0 {
		fmt.Fprintf(w, "No results found (branch: %s)\n", res.Branch)
		return
	}
	fmt.Fprintf(w, "Found %d result(s) (branch: %s", len(res.Results), res.Branch)
	if res.RerankDegraded {
		fmt.Fprint(w, ", rerank degraded")
	}
	fmt.Fprint(w, ")\n\n")
	for i, r := range res.Results {
		text := r.Text
		if !full {
			text = truncateRunes(strings.Join(strings.Fields(text), " "), 160)
		}
		fmt.Fprintf(w, "%d. [%s] %.4f doc=%s chunk=%s\n   %s\n", i+1, r.Source, r.Score, r.DocID, r.ChunkID, text)
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func newReindexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [doc_id]",
		Short: "Re-run the ingestion pipeline for one or all documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var docs []model.Document
			if len(args) == 1 {
				doc, err := a.DocumentSvc.GetDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				docs = append(docs, *doc)
			} else if docs, err = a.Documents.List(cmd.Context()); err != nil {
				return err
			}

			failed := 0
			for _, doc := range docs {
				err := a.Processor.Process(cmd.Context(), tasks.DocumentTask{
					DocID:       doc.ID,
					StoragePath: doc.StoragePath,
					Filename:    doc.Filename,
				})
				status := "ready"
				if err != nil {
					failed++
					status = "failed: " + err.Error()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", doc.ID, doc.Filename, status)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(docs))
			}
			return nil
		},
	}
}

func newDocsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.DocumentSvc.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(docs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tWORDS\tDIFFICULTY\tTITLE")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", d.ID, d.Status, d.WordCount, d.DifficultyEstimate, d.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// writerStream 把回答逐 token 写到终端，上下文只打印来源摘要。
type writerStream struct {
	w       io.Writer
	sources bool
}

func (s writerStream) Context(results []model.SearchResult) error {
	if !s.sources {
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(s.w, "[%d] %s %s\n", i+1, r.Source, r.DocID)
	}
	if len(results) > 0 {
		fmt.Fprintln(s.w)
	}
	return nil
}

func (s writerStream) Token(token string) error {
	_, err := io.WriteString(s.w, token)
	return err
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		docID     string
		sessionID string
		sources   bool
	)
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask one question and stream the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			reply, err := a.Chat.StreamChat(cmd.Context(), service.ChatRequest{
				Message:   args[0],
				DocID:     docID,
				SessionID: sessionID,
			}, writerStream{w: out, sources: sources})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n\n(mood: %s, session: %s)\n", reply.Mood, reply.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&docID, "doc", "", "attach a document id")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue a session (needs redis)")
	cmd.Flags().BoolVar(&sources, "sources", false, "print retrieved sources before the answer")
	return cmd
}
