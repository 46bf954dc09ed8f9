package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"maplemail/utils"
)

// AuthController exchanges the service API key for a short-lived JWT
// used by the admin surface.
type AuthController struct {
	jwtSecret  string
	apiKeyHash string
	logger     *logrus.Entry
}

func NewAuthController(jwtSecret, apiKeyHash string, logger *logrus.Entry) *AuthController {
	return &AuthController{
		jwtSecret:  jwtSecret,
		apiKeyHash: apiKeyHash,
		logger:     logger,
	}
}

func (ac *AuthController) Token(c *fiber.Ctx) error {
	var input struct {
		APIKey string `json:"api_key" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if ac.apiKeyHash == "" {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Admin access is not configured", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(ac.apiKeyHash), []byte(input.APIKey)); err != nil {
		ac.logger.Warn("rejected admin token request")
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid API key", nil)
	}

	token, err := utils.GenerateServiceToken(ac.jwtSecret)
	if err != nil {
		ac.logger.WithError(err).Error("failed to issue token")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to issue token", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"token":      token,
		"expires_in": int(utils.ServiceTokenTTL.Seconds()),
	}))
}
