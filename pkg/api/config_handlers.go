package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/rov-bridge/domain/teleop"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
	"github.com/open-teleop/rov-bridge/services"
	"gopkg.in/yaml.v3"
)

// ConfigHandler holds dependencies for configuration API endpoints.
type ConfigHandler struct {
	configService services.RovConfigService
	logger        customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(configService services.RovConfigService, logger customlog.Logger) *ConfigHandler {
	if configService == nil {
		panic("ConfigService cannot be nil in NewConfigHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		configService: configService,
		logger:        logger,
	}
}

// RegisterConfigRoutes registers the configuration API endpoints with the Fiber app.
func RegisterConfigRoutes(app *fiber.App, configService services.RovConfigService, logger customlog.Logger) {
	h := NewConfigHandler(configService, logger)

	apiGroup := app.Group("/api/v1/config")
	apiGroup.Get("/rov", h.handleGetRovConfig)
	apiGroup.Put("/rov", h.handleUpdateRovConfig)

	logger.Infof("Registered ROV configuration API endpoints under /api/v1/config")
}

func wantsYAML(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "yaml")
}

// handleGetRovConfig returns the current configuration as JSON, or YAML when
// the client asks for it.
func (h *ConfigHandler) handleGetRovConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling GET request for /api/v1/config/rov")
	cfg := h.configService.Get()

	if wantsYAML(c.Get(fiber.HeaderAccept)) || c.Query("format") == "yaml" {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			h.logger.Errorf("Failed to encode ROV config as YAML: %v", err)
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": fmt.Sprintf("Failed to encode configuration: %v", err),
			})
		}
		c.Set(fiber.HeaderContentType, "application/x-yaml")
		return c.Send(data)
	}

	return c.JSON(cfg)
}

// handleUpdateRovConfig applies a partial update with the same shallow
// merge as config:update. The body is JSON unless the content type says
// YAML.
func (h *ConfigHandler) handleUpdateRovConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling PUT request for /api/v1/config/rov")

	body := c.Body()
	if len(body) == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body cannot be empty.",
		})
	}

	var update teleop.ConfigurationUpdate
	var err error
	if wantsYAML(c.Get(fiber.HeaderContentType)) {
		err = yaml.Unmarshal(body, &update)
	} else {
		err = json.Unmarshal(body, &update)
	}
	if err != nil {
		h.logger.Warnf("Rejected malformed configuration update: %v", err)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Malformed configuration update: %v", err),
		})
	}

	cfg, err := h.configService.Update(update)
	if err != nil {
		if errors.Is(err, services.ErrInvalidConfiguration) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Configuration update failed: %v", err),
			})
		}
		h.logger.Errorf("Failed to update ROV configuration: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Internal server error during configuration update: %v", err),
		})
	}

	h.logger.Infof("Successfully processed PUT request to update ROV configuration.")
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success":   true,
		"newConfig": cfg,
	})
}
