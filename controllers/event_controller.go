package controller

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"maplemail/models"
	"maplemail/utils"
)

type eventRecorder interface {
	Create(ctx context.Context, event *models.Event) error
}

type eventDispatcher interface {
	Dispatch(ctx context.Context, event models.Event) (int, error)
}

// EventController is the intake for domain events. The consumer app
// posts here where the original system relied on a document-store
// creation trigger.
type EventController struct {
	events     eventRecorder
	dispatcher eventDispatcher
	logger     *logrus.Entry
}

func NewEventController(events eventRecorder, dispatcher eventDispatcher, logger *logrus.Entry) *EventController {
	return &EventController{
		events:     events,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// CreateEvent records the event and runs the event dispatcher inline,
// so every send outcome is captured before the request completes.
func (ec *EventController) CreateEvent(c *fiber.Ctx) error {
	var input struct {
		Type   string `json:"type" validate:"required"`
		UserID uint   `json:"user_id" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	event := models.Event{Type: input.Type, UserID: input.UserID}
	if err := ec.events.Create(c.Context(), &event); err != nil {
		ec.logger.WithError(err).Error("failed to record event")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record event", nil)
	}

	attempted, err := ec.dispatcher.Dispatch(c.Context(), event)
	if err != nil {
		ec.logger.WithError(err).Error("event dispatch failed")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Event recorded but dispatch failed", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(fiber.Map{
		"event_id":  event.ID,
		"attempted": attempted,
	}))
}
