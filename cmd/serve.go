package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hubboard/hubboard/internal/api"
	"github.com/hubboard/hubboard/internal/importer"
	"github.com/hubboard/hubboard/internal/sync"
	"github.com/hubboard/hubboard/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hubboard API server",
	Long: `Start the HTTP server exposing the board API and the GitHub webhook
endpoint. The webhook endpoint must be reachable from GitHub at
<base-url>/api/v1/webhooks/github for synchronization to work.

By default it listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().String("base-url", "", "externally reachable base URL registered with GitHub webhooks")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("base_url", serveCmd.Flags().Lookup("base-url"))
}

func serveRun() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	s, err := getStore()
	if err != nil {
		return err
	}

	port := viper.GetInt("port")
	baseURL := viper.GetString("base_url")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", port)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	gw := getGateway()
	engine := sync.NewEngine(s)
	router := webhook.NewRouter(engine)
	imp := importer.New(s, gw, baseURL)
	server := api.NewServer(s, gw, imp, router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("hubboard API listening", "addr", srv.Addr, "base_url", baseURL)
	return srv.ListenAndServe()
}
