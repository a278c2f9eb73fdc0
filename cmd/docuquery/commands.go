package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/devJinesh/DocuQuery/internal/chat"
	"github.com/devJinesh/DocuQuery/internal/export"
	"github.com/devJinesh/DocuQuery/internal/job"
	"github.com/devJinesh/DocuQuery/internal/model"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
	"github.com/devJinesh/DocuQuery/internal/schedule"
	"github.com/devJinesh/DocuQuery/internal/upload"
	"github.com/devJinesh/DocuQuery/internal/watch"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", appErr.ErrInvalid, s)
	}
	return id, nil
}

func newUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "upload documents one after another",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return appErr.ErrNoFiles
			}
			files := make([]upload.Source, 0, len(args))
			for _, path := range args {
				files = append(files, upload.FromPath(path))
			}
			c := a.newCoordinator(0)
			last := map[int]model.UploadStatus{}
			c.OnProgress(func(tasks []model.UploadTask) {
				for i, t := range tasks {
					if last[i] == t.Status || t.Status == model.UploadQueued {
						continue
					}
					last[i] = t.Status
					a.out.Task(t)
				}
			})
			tasks := c.Enqueue(cmd.Context(), files)
			failed := 0
			for _, t := range tasks {
				if t.Status == model.UploadError {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(tasks))
			}
			return nil
		},
	}
}

func newDocsCmd(a *app) *cobra.Command {
	docsCmd := &cobra.Command{Use: "docs", Short: "browse and manage uploaded documents"}
	docsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "list documents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				docs, err := a.registry.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(docs) == 0 {
					a.out.Printf("no documents\n")
				}
				for _, d := range docs {
					a.out.Document(d)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "get ID",
			Short: "show one document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				doc, err := a.registry.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				a.out.Document(*doc)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "delete a document and its index",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if _, err := a.registry.List(cmd.Context()); err != nil {
					return err
				}
				if err := a.registry.Delete(cmd.Context(), id); err != nil {
					return err
				}
				a.out.Printf("deleted document %d\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reindex [ID]",
			Short: "reprocess one document, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) == 0 {
					ack, err := a.client.Reindex(cmd.Context(), nil)
					if err != nil {
						return err
					}
					a.registry.Bump()
					a.out.Printf("%s\n", ack.Message)
					return nil
				}
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				msg, err := a.registry.Reindex(cmd.Context(), id)
				if err != nil {
					return err
				}
				a.out.Printf("%s\n", msg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "images ID",
			Short: "list images extracted from a document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				images, err := a.client.DocumentImages(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(images) == 0 {
					a.out.Printf("no images\n")
				}
				for _, img := range images {
					a.out.Image(img)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "tables ID",
			Short: "list tables extracted from a document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				tables, err := a.client.DocumentTables(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(tables) == 0 {
					a.out.Printf("no tables\n")
				}
				for _, tbl := range tables {
					a.out.Table(tbl)
				}
				return nil
			},
		},
		newDownloadCmd(a),
	)
	return docsCmd
}

func newDownloadCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "download TYPE FILE_ID",
		Short: "save an extracted image or table (image, csv, excel)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseDownloadKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			path := outPath
			if path == "" {
				path = fmt.Sprintf("%s_%d%s", kind, id, kind.Ext())
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			n, err := a.client.Download(cmd.Context(), kind, id, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(path)
				return err
			}
			logutil.GetLogger(cmd.Context()).Debug("artifact downloaded", zap.String("path", path), zap.Int64("bytes", n))
			a.out.Printf("saved %s (%s)\n", path, size(n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "destination file (default TYPE_ID.EXT)")
	return cmd
}

// subject selects docID in the registry, which rebinds every session built
// by newSession. Zero means all documents.
func (a *app) subject(ctx context.Context, s *chat.Session, docID int64) (*model.Document, error) {
	if docID == 0 {
		a.registry.ClearSelection()
		s.SetSubject(ctx, nil)
		return nil, nil
	}
	doc, err := a.registry.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	selected, ok := a.registry.Select(doc.ID)
	if !ok {
		return nil, fmt.Errorf("select document %d: %w", doc.ID, appErr.ErrNotFound)
	}
	if cur := s.State().SubjectDocumentID; cur == nil || *cur != selected.ID {
		s.SetSubject(ctx, selected)
	}
	return selected, nil
}

func newAskCmd(a *app) *cobra.Command {
	var docID int64
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "ask a single question",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := a.newSession(ctx)
			if _, err := a.subject(ctx, s, docID); err != nil {
				return err
			}
			res := s.Submit(ctx, strings.Join(args, " "))
			if !res.Accepted {
				return res.Err
			}
			a.out.Message(res.Reply)
			return res.Err
		},
	}
	cmd.Flags().Int64Var(&docID, "doc", 0, "document id to ask about (default: all documents)")
	return cmd
}

func newChatCmd(a *app) *cobra.Command {
	var docID int64
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "interactive conversation (/doc ID, /delete, /reset, /export FORMAT, /load ID, /quit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logutil.GetLogger(ctx)
			s := a.newSession(ctx)
			docName := ""
			a.registry.OnSelect(func(doc *model.Document) {
				if doc == nil {
					docName = ""
					a.out.Printf("chatting about all documents\n")
					return
				}
				docName = doc.Name
				a.out.Printf("chatting about %s (id %d)\n", doc.Name, doc.ID)
			})
			if _, err := a.subject(ctx, s, docID); err != nil {
				return err
			}

			in := bufio.NewScanner(cmd.InOrStdin())
			for {
				a.out.Printf("> ")
				if !in.Scan() {
					return in.Err()
				}
				line := strings.TrimSpace(in.Text())
				if !strings.HasPrefix(line, "/") {
					res := s.Submit(ctx, line)
					if res.Accepted {
						a.out.Message(res.Reply)
					}
					continue
				}
				name, arg, _ := strings.Cut(line, " ")
				switch name {
				case "/quit", "/exit":
					return nil
				case "/reset":
					s.Reset(ctx)
					a.out.Printf("conversation cleared\n")
				case "/doc":
					id, err := parseID(arg)
					if err != nil {
						a.out.Error("%s", err)
						continue
					}
					if _, err := a.subject(ctx, s, id); err != nil {
						a.out.Error("%s", describe(err))
					}
				case "/delete":
					doc, ok := a.registry.Selected()
					if !ok {
						a.out.Error("no document selected")
						continue
					}
					if err := a.registry.Delete(ctx, doc.ID); err != nil {
						a.out.Error("%s", describe(err))
						continue
					}
					a.out.Printf("deleted %s\n", doc.Name)
				case "/load":
					id, err := parseID(arg)
					if err != nil {
						a.out.Error("%s", err)
						continue
					}
					conv, err := s.LoadConversation(ctx, id)
					if err != nil {
						a.out.Error("%s", describe(err))
						continue
					}
					for _, m := range s.State().Messages {
						a.out.Message(m)
					}
					a.out.Printf("loaded %q\n", conv.Title)
				case "/export":
					format, err := export.ParseFormat(arg)
					if err != nil {
						a.out.Error("%s", err)
						continue
					}
					exporter, err := a.newExporter()
					if err != nil {
						return err
					}
					loc, err := exporter.Export(ctx, export.FromSession(s.State(), "", docName), format)
					if err != nil {
						logger.Warn("export failed", zap.Error(err))
						a.out.Error("%s", describe(err))
						continue
					}
					a.out.Printf("exported to %s\n", loc)
				default:
					a.out.Error("unknown command %s", name)
				}
			}
		},
	}
	cmd.Flags().Int64Var(&docID, "doc", 0, "document id to chat about (default: all documents)")
	return cmd
}

func newSettingsCmd(a *app) *cobra.Command {
	settingsCmd := &cobra.Command{Use: "settings", Short: "backend overrides sent with each query"}

	var in model.Settings
	var merge bool
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "replace the stored overrides (blank values clear them)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if merge {
				return a.settings.Update(cmd.Context(), in)
			}
			return a.settings.Set(cmd.Context(), in)
		},
	}
	setCmd.Flags().StringVar(&in.APIBaseURL, "api-base-url", "", "LLM api base url")
	setCmd.Flags().StringVar(&in.APIKey, "api-key", "", "LLM api key")
	setCmd.Flags().StringVar(&in.Model, "model", "", "LLM model name")
	setCmd.Flags().BoolVar(&merge, "merge", false, "keep stored values for flags left empty")

	settingsCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "show stored overrides",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st := a.settings.Get(cmd.Context())
				a.out.Printf("api_base_url: %s\n", orUnset(st.APIBaseURL))
				a.out.Printf("api_key:      %s\n", mask(st.APIKey))
				a.out.Printf("model:        %s\n", orUnset(st.Model))
				a.out.Printf("color:        %t\n", a.color.Get(cmd.Context()))
				return nil
			},
		},
		setCmd,
		&cobra.Command{
			Use:   "clear",
			Short: "delete stored overrides",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.settings.Clear(cmd.Context())
			},
		},
		&cobra.Command{
			Use:       "color on|off",
			Short:     "toggle colored output",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"on", "off"},
			RunE: func(cmd *cobra.Command, args []string) error {
				switch args[0] {
				case "on":
					return a.color.Set(cmd.Context(), true)
				case "off":
					return a.color.Set(cmd.Context(), false)
				}
				return fmt.Errorf("%w: expected on or off", appErr.ErrInvalid)
			},
		},
	)
	return settingsCmd
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "backend usage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			a.out.Printf("documents:     %d\n", st.TotalDocuments)
			a.out.Printf("chunks:        %d\n", st.TotalChunks)
			a.out.Printf("conversations: %d\n", st.TotalConversations)
			a.out.Printf("disk usage:    %.2f MB\n", st.DiskUsageMB)
			return nil
		},
	}
}

func newConversationsCmd(a *app) *cobra.Command {
	convCmd := &cobra.Command{Use: "conversations", Short: "backend conversation records"}

	var title string
	var docID int64
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "create an empty conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc *int64
			if docID > 0 {
				doc = &docID
			}
			conv, err := a.client.CreateConversation(cmd.Context(), title, doc)
			if err != nil {
				return err
			}
			a.out.Printf("created conversation %d\n", conv.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&title, "title", "New conversation", "conversation title")
	createCmd.Flags().Int64Var(&docID, "doc", 0, "document id the conversation is about")

	var format string
	exportCmd := &cobra.Command{
		Use:   "export ID",
		Short: "export a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			conv, err := a.client.GetConversation(cmd.Context(), id)
			if err != nil {
				return err
			}
			docName := ""
			if conv.DocID != nil {
				if doc, err := a.registry.Get(cmd.Context(), *conv.DocID); err == nil {
					docName = doc.Name
				}
			}
			exporter, err := a.newExporter()
			if err != nil {
				return err
			}
			loc, err := exporter.Export(cmd.Context(), export.FromConversation(*conv, docName), f)
			if err != nil {
				return err
			}
			a.out.Printf("exported to %s\n", loc)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&format, "format", "markdown", "json, markdown or html")

	convCmd.AddCommand(
		createCmd,
		&cobra.Command{
			Use:   "get ID",
			Short: "print a conversation transcript",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				conv, err := a.client.GetConversation(cmd.Context(), id)
				if err != nil {
					return err
				}
				a.out.Printf("%s (id %d)\n", conv.Title, conv.ID)
				for _, m := range conv.Messages {
					a.out.Message(model.Message{Sender: m.Sender, Text: m.Text, Citations: m.Citations, Timestamp: m.Timestamp.Time})
				}
				return nil
			},
		},
		exportCmd,
	)
	return convCmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch DIR",
		Short: "upload files dropped into DIR and report when they are processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.registry.List(ctx); err != nil {
				logutil.GetLogger(ctx).Warn("initial document listing failed", zap.Error(err))
			}
			c := a.newCoordinator(time.Duration(a.cfg.Upload.ClearDelayMS) * time.Millisecond)

			sched := schedule.NewCronScheduler()
			statusJob := job.NewDocumentStatusJob(a.registry, func(doc model.Document) {
				a.out.Printf("processed %s (id %d, %d pages)\n", doc.Name, doc.ID, doc.PageCount)
			})
			if err := sched.AddJob(statusJob, a.cfg.Watch.RefreshSpec); err != nil {
				return err
			}
			sched.Start(ctx)
			defer sched.Stop()

			w := watch.New(a.cfg.Watch.Extensions, watch.DefaultSettle)
			a.out.Printf("watching %s, press Ctrl-C to stop\n", args[0])
			return w.Run(ctx, args[0], func(ctx context.Context, path string) {
				for _, t := range c.Enqueue(ctx, []upload.Source{upload.FromPath(path)}) {
					a.out.Task(t)
				}
			})
		},
	}
}
