package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pterm/pterm"

	"github.com/open-teleop/rov-bridge/domain/diagnostic"
	"github.com/open-teleop/rov-bridge/pkg/api"
	"github.com/open-teleop/rov-bridge/pkg/config"
	"github.com/open-teleop/rov-bridge/pkg/gateway"
	"github.com/open-teleop/rov-bridge/pkg/link"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
	"github.com/open-teleop/rov-bridge/pkg/transport"
	"github.com/open-teleop/rov-bridge/services"
)

func main() {
	configDir := flag.String("config-dir", "configs", "directory containing "+config.BootstrapFileName)
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	flag.Parse()

	if *listPorts {
		if err := printPorts(); err != nil {
			pterm.Error.Println(err)
			os.Exit(1)
		}
		return
	}

	bootstrapCfg, err := config.LoadBootstrapConfig(*configDir)
	if err != nil {
		pterm.Warning.Printf("Using built-in defaults: %v\n", err)
		bootstrapCfg = config.DefaultBootstrapConfig()
	}

	appLogger, err := customlog.NewLogrusLogger(bootstrapCfg.Logging.Level, bootstrapCfg.Logging.LogPath)
	if err != nil {
		pterm.Error.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	port := bootstrapCfg.Server.HTTPPort
	if envPort := os.Getenv("PORT"); envPort != "" {
		p, err := strconv.Atoi(envPort)
		if err != nil || p <= 0 || p > 65535 {
			appLogger.Fatalf("Invalid PORT environment variable %q", envPort)
		}
		port = p
	}

	seed, err := services.LoadRovConfiguration(bootstrapCfg.Data.RovConfigFile)
	if err != nil {
		appLogger.Fatalf("Failed to load ROV configuration: %v", err)
	}
	rovConfig, err := services.NewRovConfigService(seed, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to create ROV configuration service: %v", err)
	}

	gw, err := gateway.New(gateway.Options{
		Config:           rovConfig,
		Ports:            transport.ListPorts,
		Logger:           appLogger,
		QueueSize:        bootstrapCfg.Gateway.QueueSize,
		ClientBufferSize: bootstrapCfg.Gateway.ClientBufferSize,
	})
	if err != nil {
		appLogger.Fatalf("Failed to create gateway: %v", err)
	}
	rovConfig.SetPublisher(gw)

	registry := transport.NewDefaultRegistry(bootstrapCfg.Transport, appLogger)
	linkManager, err := link.NewManager(registry, gw, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to create link manager: %v", err)
	}
	gw.SetLink(linkManager)
	gw.Start()

	diagnosticService := diagnostic.NewDiagnosticService(linkManager, gw)

	app := fiber.New(fiber.Config{
		AppName:               "ROV Bridge",
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"link":   linkManager.Status(),
		})
	})

	apiGroup := app.Group("/api/v1")
	apiGroup.Get("/diagnostics", diagnosticService.GetMetricsHandler)
	api.RegisterConfigRoutes(app, rovConfig, appLogger)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		gw.Serve(c)
	}))

	pterm.DefaultHeader.WithFullWidth().
		WithBackgroundStyle(pterm.NewStyle(pterm.BgBlue)).
		WithTextStyle(pterm.NewStyle(pterm.FgWhite)).
		Println("ROV Bridge")
	pterm.Info.Printf("Operator websocket on ws://0.0.0.0:%d/ws\n", port)

	go func() {
		appLogger.Infof("Server starting on port %d", port)
		if err := app.Listen(":" + strconv.Itoa(port)); err != nil {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	if target := bootstrapCfg.Transport.DefaultTarget; target != "" {
		if err := linkManager.Connect(target); err != nil {
			appLogger.Warnf("Default target %q not used: %v", target, err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Infof("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shutdown(ctx, app.ShutdownWithContext, gw, linkManager, appLogger)

	appLogger.Infof("Server exited properly")
}

func printPorts() error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		pterm.Info.Println("No serial ports found.")
		return nil
	}

	data := pterm.TableData{{"Path", "Product", "Serial", "VID:PID"}}
	for _, p := range ports {
		ids := ""
		if p.IsUSB {
			ids = fmt.Sprintf("%s:%s", p.VID, p.PID)
		}
		data = append(data, []string{p.Path, p.Product, p.SerialNumber, ids})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// shutdown stops intake before closing the link: the server first, then
// the dispatch worker so no queued rov:connect runs after the disconnect.
func shutdown(ctx context.Context, stopServer func(context.Context) error, gw interface{ Stop() }, l interface{ Disconnect() }, logger customlog.Logger) {
	if err := stopServer(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	gw.Stop()
	l.Disconnect()
}

// Custom error handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
