package transport

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

// API is the thin HTTP surface in front of the tracker: send, edit, delete,
// attachment upload. Everything stateful happens behind the contract
// interfaces.
type API struct {
	tracker  contract.ITracker
	blobs    contract.IBlobStore
	verifier contract.IVerifier
	validate *validator.Validate
	log      *slog.Logger
}

func NewAPI(tracker contract.ITracker, blobs contract.IBlobStore,
	verifier contract.IVerifier, log *slog.Logger) *API {
	return &API{
		tracker:  tracker,
		blobs:    blobs,
		verifier: verifier,
		validate: validator.New(),
		log:      log,
	}
}

// Mount registers the websocket endpoint and the message routes on app.
func (a *API) Mount(ctx context.Context, app *fiber.App, router *Router) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		router.Serve(ctx, conn)
	}))

	api := app.Group("/api", a.requireIdentity)
	api.Post("/messages/:to", a.sendMessage)
	api.Patch("/messages/:id", a.editMessage)
	api.Delete("/messages/:id", a.deleteMessage)
	api.Post("/upload", a.upload)
}

// requireIdentity resolves the Authorization bearer token through the auth
// collaborator and stashes the verified identity for the handlers.
func (a *API) requireIdentity(c *fiber.Ctx) error {
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok {
		return fail(c, errors.ErrInvalidIdentity)
	}
	identity, err := a.verifier.Verify(token)
	if err != nil {
		return fail(c, err)
	}
	c.Locals("identity", identity)
	return c.Next()
}

type sendMessageRequest struct {
	Body       string `json:"body" validate:"required_without=Attachment,max=4000"`
	Attachment string `json:"attachment" validate:"required_without=Body,omitempty,url"`
}

func (a *API) sendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if err := a.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	msg := domain.Message{
		ID:          uuid.New(),
		SenderID:    identity(c),
		ReceiverID:  c.Params("to"),
		Body:        req.Body,
		Attachment:  req.Attachment,
		CreatedAt:   time.Now().UTC(),
		DeliveredTo: []string{},
		SeenBy:      []string{},
	}
	stored, err := a.tracker.OnSend(c.UserContext(), msg)
	if err != nil {
		a.log.Error("Send failed", "error", err)
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(stored)
}

type editMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

func (a *API) editMessage(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if err := a.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	msg, err := a.tracker.OnEdit(c.UserContext(), id, identity(c), req.Body)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msg)
}

func (a *API) deleteMessage(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if err := a.tracker.OnDelete(c.UserContext(), id, identity(c)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type uploadRequest struct {
	Data string `json:"data" validate:"required,base64"`
}

func (a *API) upload(c *fiber.Ctx) error {
	var req uploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if err := a.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	url, err := a.blobs.Store(data)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

func identity(c *fiber.Ctx) string {
	id, _ := c.Locals("identity").(string)
	return id
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errors.MapToStatus(err)).JSON(fiber.Map{"error": err.Error()})
}
