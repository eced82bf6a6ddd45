package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imgupload/internal/imageproc"
	"imgupload/internal/mirror"
	"imgupload/internal/models"
	"imgupload/internal/server"
	"imgupload/internal/storage"
	"imgupload/internal/upload"
)

var (
	configPath string
	uploadPath string
	serverAddr string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "imgupload: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "imgupload",
		Short:        "Image upload post-processing service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&uploadPath, "upload-path", "", "Override upload_path")
	cmd.AddCommand(newServeCmd(), newProcessCmd(), newWMGenCmd())
	return cmd
}

// loadConfig merges the configuration layers, flags on top.
func loadConfig() (*models.Config, error) {
	var l models.Layer
	if uploadPath != "" {
		l.UploadPath = &uploadPath
	}
	if serverAddr != "" {
		l.ServerAddr = &serverAddr
	}
	return models.LoadConfig(configPath, l)
}

// newMirror returns nil when no bucket is configured.
func newMirror(ctx context.Context, cfg *models.Config) (server.Mirror, error) {
	m, err := mirror.NewFromConfig(ctx, cfg.S3)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func newUploader(cfg *models.Config, logger *log.Logger) (*upload.Uploader, error) {
	pipeline, err := imageproc.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	transport, err := upload.NewTransport(cfg.Upload)
	if err != nil {
		return nil, err
	}
	return upload.NewUploader(transport, pipeline, logger), nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP upload API and the ingest consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := log.New(os.Stderr, "[imgupload] ", log.LstdFlags)

			db, err := storage.NewStorage(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to init storage: %w", err)
			}
			defer db.Close()

			uploader, err := newUploader(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to init pipeline: %w", err)
			}
			m, err := newMirror(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to init mirror: %w", err)
			}

			// Kafka producer
			producer := server.NewKafkaWriter(cfg.KafkaBroker, cfg.KafkaTopic)
			defer producer.Close()
			recorder := server.NewRecorder(db, server.NewKafkaPublisher(producer), m, logger)

			// Start Kafka consumer in background
			consumer := server.NewConsumer(server.NewKafkaReader(cfg.KafkaBroker, cfg.KafkaIngestTopic), uploader, recorder, logger)
			go consumer.Run(ctx)

			srv := server.NewServer(cfg, uploader, db, recorder)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				srv.Stop()
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&serverAddr, "addr", "", "Override server_addr")
	return cmd
}

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>...",
		Short: "Copy local files into the upload directory and process them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := log.New(os.Stderr, "[imgupload] ", log.LstdFlags)

			uploader, err := newUploader(cfg, logger)
			if err != nil {
				return err
			}
			m, err := newMirror(ctx, cfg)
			if err != nil {
				return err
			}

			srcs := make([]upload.Source, 0, len(args))
			for _, a := range args {
				srcs = append(srcs, upload.FromFile(a))
			}
			results, batchErr := uploader.ProcessBatch(ctx, srcs)
			if m != nil {
				for _, res := range results {
					if err := m.Mirror(ctx, res.Record); err != nil {
						logger.Printf("mirror %s: %v", res.Record.FileName, err)
					}
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}
			return batchErr
		},
	}
}

func newWMGenCmd() *cobra.Command {
	var (
		text string
		size float64
	)
	cmd := &cobra.Command{
		Use:   "wmgen",
		Short: "Render the light and dark watermark assets from text",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if text == "" {
				text = cfg.Image.WMText
			}
			if err := imageproc.WriteTextMarks(text, size, cfg.Image.WMImageLight, cfg.Image.WMImageDark); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", cfg.Image.WMImageLight, cfg.Image.WMImageDark)
			return nil
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "Watermark text, defaults to wm_text")
	cmd.Flags().Float64VarP(&size, "size", "s", 24, "Font size in points")
	return cmd
}
