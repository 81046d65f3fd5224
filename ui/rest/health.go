package rest

import (
	"time"

	coreconfig "github.com/Zer0phucks/devconsul/core/config"
	"github.com/Zer0phucks/devconsul/infrastructure/valkey"
	"github.com/Zer0phucks/devconsul/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var startedAt = time.Now()

type Health struct {
	DB     *gorm.DB
	Valkey *valkey.Client
}

func InitRestHealth(app fiber.Router, db *gorm.DB, vk *valkey.Client) Health {
	handler := Health{DB: db, Valkey: vk}

	group := app.Group("/health")
	group.Get("/status", handler.GetStatus)
	group.Get("/settings", handler.GetSettings)

	return handler
}

// GetSettings exposes the effective runtime configuration for operators.
func (h *Health) GetSettings(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Settings retrieved",
		Results: coreconfig.GetAllSettings(),
	})
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	checks := fiber.Map{"database": "ok", "valkey": "disabled", "started": humanize.Time(startedAt)}
	status := 200

	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.UserContext())
	}
	if err != nil {
		checks["database"] = err.Error()
		status = 503
	}

	if h.Valkey != nil {
		checks["valkey"] = "ok"
		if err := h.Valkey.Ping(c.UserContext()); err != nil {
			checks["valkey"] = err.Error()
			status = 503
		}
	}

	code := "SUCCESS"
	if status != 200 {
		code = "DEGRADED"
	}
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    code,
		Message: "Health status retrieved",
		Results: checks,
	})
}
