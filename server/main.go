package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meikuraledutech/vidgraph"
	"github.com/meikuraledutech/vidgraph/events"
	"github.com/meikuraledutech/vidgraph/postgres"
	"github.com/meikuraledutech/vidgraph/veo"
	"github.com/meikuraledutech/vidgraph/worker"
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	store := postgres.New(pool)

	var publisher *events.Publisher
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		publisher = events.NewPublisher(rdb, logger)
	}

	w := worker.New(worker.Config{
		Jobs:    store,
		Nodes:   store,
		Backend: veo.New(veo.ConfigFromEnv()),
		Events:  publisher,
		Logger:  logger,
	})
	w.Start(context.Background())

	app := fiber.New()

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", func(c fiber.Ctx) error {
		if err := store.CreateSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema created"})
	})

	app.Delete("/schema", func(c fiber.Ctx) error {
		if err := store.DropSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema dropped"})
	})

	// ── Nodes ─────────────────────────────────────────────────────────
	app.Post("/projects/:projectID/nodes", func(c fiber.Ctx) error {
		var node vidgraph.Node
		if err := c.Bind().JSON(&node); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		created, err := store.CreateNode(c.Context(), c.Params("projectID"), &node)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(created)
	})

	app.Get("/projects/:projectID/nodes", func(c fiber.Ctx) error {
		nodes, err := store.ListNodes(c.Context(), c.Params("projectID"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(nodes)
	})

	app.Get("/nodes/:id", func(c fiber.Ctx) error {
		n, err := store.GetNode(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if n == nil {
			return c.Status(404).JSON(fiber.Map{"error": "node not found"})
		}
		return c.JSON(n)
	})

	app.Put("/projects/:projectID/nodes/:id", func(c fiber.Ctx) error {
		var update vidgraph.NodeUpdate
		if err := c.Bind().JSON(&update); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		err := store.UpdateNode(c.Context(), c.Params("projectID"), c.Params("id"), update)
		if errors.Is(err, vidgraph.ErrNodeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "node not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	app.Delete("/projects/:projectID/nodes/:id", func(c fiber.Ctx) error {
		if err := store.DeleteNode(c.Context(), c.Params("projectID"), c.Params("id")); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if publisher != nil {
			_ = publisher.Publish(c.Context(), c.Params("projectID"), events.NodeEvent{
				Event:  events.EventNodeDeleted,
				NodeID: c.Params("id"),
			})
		}
		return c.SendStatus(204)
	})

	// ── Connections ───────────────────────────────────────────────────
	app.Post("/projects/:projectID/connections", func(c fiber.Ctx) error {
		var conn vidgraph.Connection
		if err := c.Bind().JSON(&conn); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		created, err := store.CreateConnection(c.Context(), c.Params("projectID"), &conn)
		if errors.Is(err, vidgraph.ErrSelfLoop) {
			return c.Status(422).JSON(fiber.Map{"error": "connection cannot target its own source"})
		}
		if errors.Is(err, vidgraph.ErrDuplicateConnection) {
			return c.Status(409).JSON(fiber.Map{"error": "connection already exists"})
		}
		if errors.Is(err, vidgraph.ErrNodeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "source or target node not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(created)
	})

	app.Get("/projects/:projectID/connections", func(c fiber.Ctx) error {
		conns, err := store.ListConnections(c.Context(), c.Params("projectID"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(conns)
	})

	app.Delete("/projects/:projectID/connections/:id", func(c fiber.Ctx) error {
		if err := store.DeleteConnection(c.Context(), c.Params("projectID"), c.Params("id")); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	// ── Generation ────────────────────────────────────────────────────
	app.Post("/ai/generate-video", func(c fiber.Ctx) error {
		var req vidgraph.GenerationRequest
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		if req.Prompt == "" {
			return c.Status(400).JSON(fiber.Map{"error": "prompt is required"})
		}
		projectID, err := store.NodeProjectID(c.Context(), req.NodeID)
		if errors.Is(err, vidgraph.ErrNodeNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "node not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		if err := store.FinalizeNode(c.Context(), req.NodeID, vidgraph.StatusProcessing, "", nil); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}

		job := &vidgraph.Job{
			NodeID:    req.NodeID,
			ProjectID: projectID,
			Type:      vidgraph.JobTypeVideoGeneration,
			Status:    vidgraph.JobPending,
			Request:   &req,
		}
		jobID, err := store.CreateJob(c.Context(), job)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{
			"job_id":  jobID,
			"node_id": req.NodeID,
			"status":  vidgraph.JobPending,
		})
	})

	app.Get("/ai/jobs/:id", func(c fiber.Ctx) error {
		job, err := store.GetJob(c.Context(), c.Params("id"))
		if errors.Is(err, vidgraph.ErrJobNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "job not found"})
		}
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		job.Request = nil // internal payload, not part of status responses
		return c.JSON(job)
	})

	app.Get("/ai/nodes/:id/jobs/latest", func(c fiber.Ctx) error {
		job, err := store.GetLatestJobForNode(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if job == nil {
			return c.Status(404).JSON(fiber.Map{"error": "no jobs for node"})
		}
		job.Request = nil
		return c.JSON(job)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	log.Fatal(app.Listen(":" + port))
}
