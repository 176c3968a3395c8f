package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/swagward/swagward/internal/config"
	"github.com/swagward/swagward/middleware"
)

func ServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve schema, explorer UI and a validating proxy for a Swagger 2.0 API",
		RunE:  runServe,
	}

	config.BindServeFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}

	opts := middleware.DefaultOptions()
	opts.ValidateSpec = cfg.Validation.Spec
	opts.ValidateRequests = cfg.Validation.Requests
	opts.ValidateResponses = cfg.Validation.Responses
	opts.IgnoreUndefinedRoutes = cfg.IgnoreUndefinedRoutes
	opts.BasePath = cfg.BasePath
	opts.ServeSchema = cfg.Schema.Enabled
	opts.ServeUI = cfg.UI.Enabled
	opts.UIValidatorURL = cfg.UI.ValidatorURL
	if cfg.Schema.Suburl != "" {
		opts.SchemaSubpath = cfg.Schema.Suburl
	}
	if cfg.UI.Suburl != "" {
		opts.UISubpath = cfg.UI.Suburl
	}

	plugin, err := middleware.NewFromFile(cfg.Spec, opts)
	if err != nil {
		return fmt.Errorf("loading spec: %w", err)
	}

	info := plugin.Document().Info()
	cmd.PrintErrf("Loaded Swagger 2.0: %s v%s\n", info.Title, info.Version)
	cmd.PrintErrf("  Base path: %s\n", plugin.BasePath())
	if opts.ServeSchema {
		cmd.PrintErrf("  Schema: %s\n", plugin.SchemaPath())
	}
	if opts.ServeUI {
		cmd.PrintErrf("  Explorer: %s\n", plugin.UIPath())
	}

	mux := http.NewServeMux()
	plugin.Register(mux)

	if cfg.Upstream != "" {
		target, err := url.Parse(cfg.Upstream)
		if err != nil {
			return fmt.Errorf("parsing upstream: %w", err)
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		mux.Handle("/", plugin.Handler(proxy))
		cmd.PrintErrf("  Proxying validated traffic to %s\n", target)
	}

	handler := requestLogger(mux)

	cmd.PrintErrf("Listening on %s\n", cfg.Listen)
	return http.ListenAndServe(cfg.Listen, handler)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
