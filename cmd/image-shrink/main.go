package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"image-shrink-go/internal/compressor"
	"image-shrink-go/internal/config"
	"image-shrink-go/internal/host"
	"image-shrink-go/internal/logger"
	"image-shrink-go/internal/metadata"
	"image-shrink-go/internal/pipeline"
	"image-shrink-go/internal/watcher"
	"image-shrink-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile         string
	verbose         bool
	quiet           bool
	backendType     string
	outputFormat    string
	outputPath      string
	outputDir       string
	continueOnError bool
	version         = "dev"
	listenHost      string
	port            int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:     "image-shrink",
	Short:   "Compress images through a compression service or locally",
	Version: version,
	Long: `ImageShrink compresses images by sending them to a remote compression
service (multipart upload, image URL, or TinyPNG-compatible API) or by
re-encoding them locally, and reports how much space was saved.

Features:
- Single file, remote URL and batch compression
- Markdown reports with sizes and compression rates
- Image filtering by extension
- Directory watching and an HTTP interface with live progress`,
	SilenceUsage: true,
}

// compressCmd compresses one local file.
var compressCmd = &cobra.Command{
	Use:   "compress <file>",
	Short: "Compress a single image file",
	Long: `Compresses one image. Without --output the result is written next to
the source with the configured suffix (photo.jpg -> photo_compressed.jpg).
When --output is a directory the source name is kept inside it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd.Context(), args[0])
	},
}

// compressURLCmd compresses a remote image.
var compressURLCmd = &cobra.Command{
	Use:   "compress-url <url>",
	Short: "Compress an image available at an http(s) URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompressURL(cmd.Context(), args[0])
	},
}

// batchCmd compresses files and directories into one output directory.
var batchCmd = &cobra.Command{
	Use:   "batch <paths...>",
	Short: "Compress several images into one directory",
	Long: `Compresses every image among the given files and directories
(directories are searched recursively) and prints a table with the
compression rate of each file and the total space saved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), args)
	},
}

// filterCmd prints the paths that look like images.
var filterCmd = &cobra.Command{
	Use:   "filter <paths...>",
	Short: "Print the given paths that have an image extension",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilter(args)
	},
}

// inspectCmd shows image metadata for a file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show format, dimensions and compression marker of an image",
	Long: `Shows what the batch command sees when deciding whether an image was
already compressed. This is useful for debugging batch.skip_marked.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

// watchCmd compresses new images appearing in a directory.
var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Compress images as they are added to a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context(), args[0])
	},
}

// serveCmd starts the HTTP interface.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP interface",
	Long: `Starts an HTTP server exposing the compression tasks as JSON endpoints:
  POST /api/compress, /api/compress-url, /api/batch, /api/filter
  GET  /api/status
Progress and markdown previews are pushed to websocket clients on /ws.

The API has no authentication and reads and writes local paths, so it binds
to 127.0.0.1 by default. Only pass --host 0.0.0.0 on a trusted network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&backendType, "backend", "", "compression backend: remote, url, tinify or local")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "output format: text, json or yaml")

	compressCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file or directory")
	compressURLCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file or directory")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (default: a job directory under session.root)")
	batchCmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "record failed items and keep going")
	watchCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (default: next to the source)")
	serveCmd.Flags().StringVar(&listenHost, "host", "127.0.0.1", "address to bind the web server to")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(compressURLCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// app bundles what every task command needs.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	host     *host.ConsoleHost
	pipeline *pipeline.Pipeline
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	backend, err := compressor.NewBackend(cfg, log)
	if err != nil {
		return nil, err
	}

	// structured formats keep stdout for the encoded result
	var previewOut io.Writer = os.Stdout
	if outputFormat != "text" || quiet {
		previewOut = nil
	}
	h := host.NewConsoleHost(cfg.Session.Root, previewOut, log, cfg.Backend.APIKey)
	inspector := metadata.NewEXIFInspector(log)

	return &app{
		cfg:      cfg,
		log:      log,
		host:     h,
		pipeline: pipeline.New(backend, h, log, inspector, pipeline.OptionsFromConfig(cfg)),
	}, nil
}

func runCompress(ctx context.Context, file string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	res, err := a.pipeline.CompressFile(ctx, pipeline.Request{SourcePath: file, Destination: outputPath})
	if err != nil {
		return err
	}
	return printResult(res)
}

func runCompressURL(ctx context.Context, imageURL string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	res, err := a.pipeline.CompressURL(ctx, pipeline.URLRequest{URL: imageURL, Destination: outputPath})
	if err != nil {
		return err
	}
	return printResult(res)
}

func runBatch(ctx context.Context, paths []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	report, err := a.pipeline.CompressBatch(ctx, pipeline.BatchRequest{Paths: paths, Destination: outputDir})
	if err != nil {
		return err
	}
	if outputFormat == "text" && !quiet {
		fmt.Println("\n" + a.pipeline.Statistics().GetSummary())
		if len(report.Failed) > 0 {
			fmt.Println(a.pipeline.Statistics().GetErrorSummary())
		}
	}
	return printResult(report)
}

func runFilter(paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	images := pipeline.FilterImages(paths, cfg.ImageExtensions, log)
	if outputFormat == "text" {
		for _, p := range images {
			fmt.Println(p)
		}
		return nil
	}
	return printResult(images)
}

func runInspect(file string) error {
	if !fileExists(file) {
		return fmt.Errorf("file does not exist: %s", file)
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	info, err := metadata.NewEXIFInspector(log).Inspect(file)
	if err != nil {
		return err
	}
	if outputFormat != "text" {
		return printResult(info)
	}

	fmt.Printf("File:       %s\n", info.Path)
	fmt.Printf("Format:     %s\n", info.Format)
	fmt.Printf("Dimensions: %dx%d\n", info.Width, info.Height)
	fmt.Printf("Size:       %d bytes\n", info.Size)
	if info.Software != "" {
		fmt.Printf("Software:   %s\n", info.Software)
	}
	fmt.Printf("Marked:     %v\n", info.IsMarked(cfg.Marker.Software))
	return nil
}

func runWatch(ctx context.Context, dir string) error {
	if !dirExists(dir) {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	a, err := newApp()
	if err != nil {
		return err
	}

	w := watcher.New(a.pipeline, watcher.Options{
		OutputDir:  outputDir,
		Suffix:     a.cfg.Output.Suffix,
		Extensions: a.cfg.CompressibleExtensions,
	}, a.log)

	if !quiet {
		fmt.Fprintf(os.Stderr, "Watching %s, press Ctrl+C to stop\n", dir)
	}
	if err := w.Run(ctx, dir); err != nil {
		return err
	}

	if !quiet {
		a.pipeline.Statistics().Finalize()
		fmt.Fprintln(os.Stderr, "\n"+a.pipeline.Statistics().GetSummary())
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	backend, err := compressor.NewBackend(cfg, log)
	if err != nil {
		return err
	}
	server := web.NewServer(cfg, backend, metadata.NewEXIFInspector(log), log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(listenHost, port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("ImageShrink HTTP interface listening on http://%s\n", net.JoinHostPort(listenHost, strconv.Itoa(port)))
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" && !quiet {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", cfg.File)
	}

	if backendType != "" {
		if !config.IsValidBackendType(backendType) {
			return nil, fmt.Errorf("invalid backend type: %s (valid: remote, url, tinify, local)", backendType)
		}
		cfg.Backend.Type = backendType
	}
	if continueOnError {
		cfg.Batch.ContinueOnError = true
	}

	switch outputFormat {
	case "text", "json", "yaml":
	default:
		return nil, fmt.Errorf("invalid output format: %s (valid: text, json, yaml)", outputFormat)
	}

	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	log, err := logger.New(logger.FromConfig(cfg.Logging, verbose, quiet))
	if err != nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.Warnf("Logger setup failed, using defaults: %v", err)
	}

	logger.WithOperation(log, "startup").Debugf("Backend %s, session root %s", cfg.Backend.Type, cfg.Session.Root)
	return log
}

// printResult writes v to stdout in the selected structured format. Text
// output is the markdown preview the host already printed.
func printResult(v interface{}) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return nil
	}
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists returns true if the given path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
