package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/devJinesh/DocuQuery/internal/apiclient"
	"github.com/devJinesh/DocuQuery/internal/chat"
	"github.com/devJinesh/DocuQuery/internal/config"
	"github.com/devJinesh/DocuQuery/internal/export"
	"github.com/devJinesh/DocuQuery/internal/filestore"
	"github.com/devJinesh/DocuQuery/internal/kvstore"
	"github.com/devJinesh/DocuQuery/internal/model"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
	"github.com/devJinesh/DocuQuery/internal/registry"
	"github.com/devJinesh/DocuQuery/internal/settings"
	"github.com/devJinesh/DocuQuery/internal/upload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logutil.GetLogger(context.Background()).Debug("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "docuquery",
		Short:         "docuquery document analysis client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(
		newUploadCmd(a),
		newDocsCmd(a),
		newAskCmd(a),
		newChatCmd(a),
		newSettingsCmd(a),
		newStatsCmd(a),
		newConversationsCmd(a),
		newWatchCmd(a),
	)
	return rootCmd
}

// describe prefers the user-facing detail of backend and transport
// failures over the wrapped error chain.
func describe(err error) string {
	if detail := appErr.Detail(err); detail != appErr.MsgFallback {
		return detail
	}
	return err.Error()
}

// app holds the components shared by every subcommand.
type app struct {
	cfg      *config.Config
	kv       kvstore.Store
	settings *settings.Store
	color    *settings.Preference
	client   *apiclient.Client
	registry *registry.Registry
	out      *printer
}

func (a *app) init(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	ctx := cmd.Context()
	logutil.GetLogger(ctx).Debug("config loaded",
		zap.String("config", configPath),
		zap.String("api", cfg.API.BaseURL),
		zap.String("kv_store", cfg.KVStore.Type),
	)

	kv, err := kvstore.New(cfg.KVStore)
	if err != nil {
		return fmt.Errorf("init kv store: %w", err)
	}
	a.cfg = cfg
	a.kv = kv
	a.settings = settings.NewStore(kv)
	a.color = settings.NewColorPreference(kv)
	a.client = apiclient.New(cfg.API.BaseURL, apiclient.WithTimeout(time.Duration(cfg.API.TimeoutSeconds)*time.Second))
	a.registry = registry.New(a.client, cfg.API.ListLimit)
	a.out = newPrinter(cmd.OutOrStdout(), a.color.Get(ctx))
	return nil
}

func (a *app) newCoordinator(clearDelay time.Duration) *upload.Coordinator {
	opts := upload.Options{ClearDelay: clearDelay, Concurrency: a.cfg.Upload.Concurrency}
	if a.cfg.Upload.ValidatePDF {
		opts.Validators = append(opts.Validators, upload.ExtensionValidator(".pdf"), upload.PDFValidator())
	}
	return upload.NewCoordinator(a.client, a.registry, opts)
}

// newSession builds a chat session that follows the registry selection.
func (a *app) newSession(ctx context.Context) *chat.Session {
	opts := chat.Options{}
	if a.cfg.Chat.TrackConversations {
		opts.Tracker = chat.NewTracker(a.cfg.Chat.ConversationCacheSize, time.Duration(a.cfg.Chat.ConversationTTLMinutes)*time.Minute)
	}
	s := chat.NewSession(a.client, a.settings, opts)
	a.registry.OnSelect(func(doc *model.Document) {
		s.SetSubject(ctx, doc)
	})
	return s
}

func (a *app) newExporter() (*export.Exporter, error) {
	store, err := filestore.New(a.cfg.Export)
	if err != nil {
		return nil, fmt.Errorf("init export store: %w", err)
	}
	return export.New(store), nil
}
