package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"apex-client/internal/devserver"
	"apex-client/internal/proxy"
)

func newProxyCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the preview edge proxy",
		Long:  "Serves sandbox app previews: resolves {project}.{preview-domain} hosts to their sandbox upstream, scrubs frame-blocking headers and passes HMR websockets through.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, _, err := newClient()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.ProxyListenAddr
			}

			var rdb *redis.Client
			if cfg.ProxyRedisURL != "" {
				redisOpts, err := redis.ParseURL(cfg.ProxyRedisURL)
				if err != nil {
					return fmt.Errorf("invalid APEX_PROXY_REDIS_URL: %w", err)
				}
				rdb = redis.NewClient(redisOpts)
				defer rdb.Close()
			}

			ctrl := devserver.New(client, devserver.Options{})
			src := proxy.SourceFunc(func(ctx context.Context, host string) (*proxy.Route, error) {
				// Preview hosts look like {project-id}.preview.apex.build.
				projectID, _, found := strings.Cut(host, ".")
				if !found || projectID == "" {
					return nil, proxy.ErrNoRoute
				}
				upstream, err := ctrl.PreviewURL(ctx, projectID)
				if err != nil {
					return nil, err
				}
				return &proxy.Route{ProjectID: projectID, Upstream: upstream}, nil
			})

			resolver := proxy.NewResolver(src, rdb, cfg.ProxyRouteTTL)
			return proxy.NewServer(resolver, cfg.ProxyAllowOrigin).Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from APEX_PROXY_ADDR)")
	return cmd
}
