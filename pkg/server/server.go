package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/tankobon/tankobon/pkg/binder"
	"github.com/tankobon/tankobon/pkg/bookmarks"
	"github.com/tankobon/tankobon/pkg/chapters"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/errcodes"
	"github.com/tankobon/tankobon/pkg/pagecache"
	"github.com/tankobon/tankobon/pkg/reader"
)

// Services are the collaborators the HTTP routes are served from.
type Services struct {
	Cache     *pagecache.Cache
	Chapters  *chapters.Service
	Bookmarks *bookmarks.Service
	Jobs      reader.Jobs
	// Gatherer backs GET /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
}

func New(cfg *config.Config, svcs Services) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	gatherer := svcs.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	reader.RegisterRoutes(e, svcs.Cache, svcs.Chapters, svcs.Bookmarks, svcs.Jobs)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
