package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/loc-stats/internal/metrics"
	"github.com/naka-gawa/loc-stats/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the cached totals, the SVG card and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		store, closeStore, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		handler := server.NewRouter(store, metrics.NewRecorder(), cfg.Output.Title, time.Now, logger)
		return server.Run(cmd.Context(), cfg.Server.Addr, handler, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}
