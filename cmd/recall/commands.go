package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/backfill"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/forget"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/search"
	"github.com/urfave/cli/v2"
)

// session is an open engine plus the provider backing its embedder and the
// optional metrics endpoint.
type session struct {
	*recall.Engine
	provider ai.Provider
	metrics  *http.Server
}

func (s *session) Close() error {
	if s.metrics != nil {
		if err := stopMetrics(s.metrics); err != nil {
			slog.Warn("error stopping metrics server", "err", err)
		}
	}
	err := s.Engine.Close()
	if s.provider != nil {
		if perr := s.provider.Close(); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func openEngine(c *cli.Context, embed bool) (*session, error) {
	kind, err := index.ParseKind(c.String("index-kind"))
	if err != nil {
		return nil, err
	}
	cfg := recall.DefaultConfig(c.Int("dimensions"))
	cfg.Path = c.String("db")
	cfg.Index.Kind = kind
	cfg.MaintenanceInterval = 0

	s := &session{}
	var opts []recall.Option
	if embed {
		aiConfig := ai.NewConfig(
			ai.WithEmbeddingHost(c.String("embedding-host")),
			ai.WithEmbeddingModel(c.String("embedding-model")),
			ai.WithToken(c.String("embedding-token")),
			ai.WithDimensions(cfg.Dimensions),
		)
		if err := aiConfig.Validate(); err != nil {
			return nil, fmt.Errorf("invalid embedding configuration: %w", err)
		}
		s.provider, err = newProvider(aiConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
		opts = append(opts, recall.WithEmbedder(s.provider.Embedder()))
	}

	s.Engine, err = recall.Open(c.Context, cfg, opts...)
	if err != nil {
		if s.provider != nil {
			s.provider.Close()
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if addr := c.String("metrics-addr"); addr != "" {
		s.metrics, _, err = serveMetrics(addr, s.Engine.Metrics())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to serve metrics: %w", err)
		}
	}
	return s, nil
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(name)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// importLine is one JSONL document.
type importLine struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	Vector    []float32 `json:"vector"`
}

func (l *importLine) document() *core.Document {
	doc := &core.Document{
		ID:        core.DocumentID(l.ID),
		OwnerID:   l.OwnerID,
		Title:     l.Title,
		Content:   l.Content,
		Tags:      l.Tags,
		CreatedAt: l.CreatedAt,
	}
	if doc.ID == "" {
		doc.ID = core.IDFromContent(l.OwnerID + "\x00" + l.Title + "\x00" + l.Content)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	return doc
}

func importCommand(c *cli.Context) error {
	in, err := openInput(c.String("file"))
	if err != nil {
		return err
	}
	defer in.Close()

	embed := c.Bool("embed")
	eng, err := openEngine(c, embed)
	if err != nil {
		return err
	}
	defer eng.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)

	var imported, embedded, lineNo int
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var line importLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		doc := line.document()
		switch {
		case line.Vector != nil:
			err = eng.Put(c.Context, doc, line.Vector)
			embedded++
		case embed:
			err = eng.PutText(c.Context, doc)
			embedded++
		default:
			err = eng.Put(c.Context, doc, nil)
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Imported %d documents (%d with embeddings)\n", imported, embedded)
	return nil
}

func backfillCommand(c *cli.Context) error {
	cfg := backfill.Config{
		Mode:           backfill.ModeMissing,
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Workers:        c.Int("workers"),
	}
	if c.Bool("all") {
		cfg.Mode = backfill.ModeAll
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	eng, err := openEngine(c, true)
	if err != nil {
		return err
	}
	defer eng.Close()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := eng.Backfill(c.Context, cfg, c.App.ErrWriter); err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	return nil
}

// searchRequest builds the request from --request or the individual flags.
func searchRequest(c *cli.Context) (*search.Request, error) {
	req := &search.Request{}
	if name := c.String("request"); name != "" {
		in, err := openInput(name)
		if err != nil {
			return nil, err
		}
		defer in.Close()
		if err := json.NewDecoder(in).Decode(req); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
	} else {
		req.K = c.Int("k")
	}

	if c.IsSet("owner") {
		req.OwnerID = c.String("owner")
	}
	if c.IsSet("k") {
		req.K = c.Int("k")
	}
	if c.IsSet("half-life") {
		days := c.Float64("half-life")
		req.HalfLifeDays = &days
	}
	if tags := c.StringSlice("tag"); len(tags) > 0 {
		req.Tags = tags
	}
	from, to := c.Timestamp("from"), c.Timestamp("to")
	if from != nil || to != nil {
		var r core.DateRange
		if from != nil {
			r.Start = *from
		}
		if to != nil {
			r.End = to.Add(24*time.Hour - time.Nanosecond)
		}
		req.DateRange = &r
	}

	if c.String("request") == "" && !c.IsSet("text") {
		return nil, errors.New("either --request or --text is required")
	}
	return req, nil
}

func searchCommand(c *cli.Context) error {
	req, err := searchRequest(c)
	if err != nil {
		return err
	}

	text := c.String("text")
	eng, err := openEngine(c, text != "")
	if err != nil {
		return err
	}
	defer eng.Close()

	var resp *search.Response
	if text != "" {
		resp, err = eng.SearchText(c.Context, text, req.Query())
	} else {
		resp, err = eng.Search(c.Context, req.Query())
	}
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, resp)
}

func forgetCommand(c *cli.Context) error {
	owner := c.String("owner")
	id := core.DocumentID(c.String("id"))
	mode := c.String("mode")
	if mode != "auto" && mode != string(forget.ModeSoft) && mode != string(forget.ModeHard) {
		return fmt.Errorf("invalid mode %q: must be one of auto, soft, hard", mode)
	}

	eng, err := openEngine(c, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	var applied forget.Mode
	if mode == "auto" {
		applied, err = eng.Forget(c.Context, owner, id)
	} else {
		applied, err = forced(c, eng, owner, id, forget.Mode(mode))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "forgot %s (%s)\n", id, applied)
	return nil
}

// forced forgets id with an explicit mode after checking ownership.
func forced(c *cli.Context, eng *session, owner string, id core.DocumentID, mode forget.Mode) (forget.Mode, error) {
	doc, err := eng.Document(c.Context, id)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", id, err)
	}
	if doc.OwnerID != owner {
		return "", fmt.Errorf("%w: %s", forget.ErrNotOwner, id)
	}
	if mode == forget.ModeHard {
		return mode, eng.HardDelete(c.Context, id)
	}
	return mode, eng.SoftDelete(c.Context, id)
}

func rebuildCommand(c *cli.Context) error {
	eng, err := openEngine(c, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.TriggerRebuild(c.Context); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	stats, err := eng.IndexStats(c.Context)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, stats)
}

func statsCommand(c *cli.Context) error {
	eng, err := openEngine(c, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.IndexStats(c.Context)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, stats)
}

type settingsView struct {
	OwnerID      string  `json:"owner_id"`
	HalfLifeDays float64 `json:"half_life_days"`
	HardDelete   bool    `json:"hard_delete"`
}

func settingsCommand(c *cli.Context) error {
	owner := c.String("owner")

	eng, err := openEngine(c, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	settings, err := eng.Settings(c.Context, owner)
	if err != nil {
		return err
	}
	changed := false
	if c.IsSet("half-life") {
		settings.HalfLifeDays = c.Float64("half-life")
		changed = true
	}
	if c.IsSet("hard-delete") {
		settings.HardDelete = c.Bool("hard-delete")
		changed = true
	}
	if changed {
		settings.OwnerID = owner
		if err := eng.SaveSettings(c.Context, settings); err != nil {
			return err
		}
	}
	return writeJSON(c.App.Writer, settingsView{
		OwnerID:      owner,
		HalfLifeDays: settings.HalfLifeDays,
		HardDelete:   settings.HardDelete,
	})
}
