package controller

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"maplemail/models"
	"maplemail/store"
	"maplemail/utils"
)

type sequenceReader interface {
	List(ctx context.Context) ([]models.EmailSequence, error)
	Get(ctx context.Context, id uint) (*models.EmailSequence, error)
}

type logReader interface {
	List(ctx context.Context, filter store.LogFilter) ([]models.EmailLog, error)
	ListAfter(ctx context.Context, afterID uint, limit int) ([]models.EmailLog, error)
	LastID(ctx context.Context) (uint, error)
}

// AdminController serves the read-only inspection surface: sequences as
// the dispatcher sees them, and the email log it writes.
type AdminController struct {
	sequences sequenceReader
	logs      logReader
	logger    *logrus.Entry
}

func NewAdminController(sequences sequenceReader, logs logReader, logger *logrus.Entry) *AdminController {
	return &AdminController{
		sequences: sequences,
		logs:      logs,
		logger:    logger,
	}
}

func (ad *AdminController) ListSequences(c *fiber.Ctx) error {
	sequences, err := ad.sequences.List(c.Context())
	if err != nil {
		ad.logger.WithError(err).Error("failed to list sequences")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list sequences", nil)
	}
	return c.JSON(utils.SuccessResponse(sequences))
}

func (ad *AdminController) GetSequence(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid sequence id", nil)
	}

	sequence, err := ad.sequences.Get(c.Context(), uint(id))
	if err != nil {
		ad.logger.WithError(err).Error("failed to get sequence")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get sequence", nil)
	}
	if sequence == nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
	}
	return c.JSON(utils.SuccessResponse(sequence))
}

func (ad *AdminController) ListLogs(c *fiber.Ctx) error {
	filter := store.LogFilter{
		Status:     c.Query("status"),
		SequenceID: uint(c.QueryInt("sequence_id")),
		Limit:      c.QueryInt("limit"),
	}

	entries, err := ad.logs.List(c.Context(), filter)
	if err != nil {
		ad.logger.WithError(err).Error("failed to list logs")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list logs", nil)
	}
	return c.JSON(utils.SuccessResponse(entries))
}

// StreamLogs tails new email log rows over a websocket, polling the
// store every couple of seconds until the client goes away.
func (ad *AdminController) StreamLogs(conn *websocket.Conn) {
	defer conn.Close()

	ctx := context.Background()
	lastID, err := ad.logs.LastID(ctx)
	if err != nil {
		ad.logger.WithError(err).Error("log tail failed to start")
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		entries, err := ad.logs.ListAfter(ctx, lastID, 50)
		if err != nil {
			ad.logger.WithError(err).Error("log tail query failed")
			return
		}
		for i := range entries {
			if err := conn.WriteJSON(&entries[i]); err != nil {
				return
			}
			lastID = entries[i].ID
		}
	}
}
